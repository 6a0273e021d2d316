// Package protocol loads experiment protocol files: which videos of a
// database belong to each split and class.
package protocol

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// Entry is one protocol list item. In YAML it is either a bare video ID or a
// mapping with id, path, facefile and rotated keys.
type Entry types.Video

// UnmarshalYAML accepts both entry forms.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		*e = Entry{ID: id}
		return nil
	}
	var v types.Video
	if err := node.Decode(&v); err != nil {
		return err
	}
	*e = Entry(v)
	return nil
}

// Lists holds the real and attack videos of one split.
type Lists struct {
	Real   []Entry `yaml:"real"`
	Attack []Entry `yaml:"attack"`
}

// File mirrors the protocol YAML layout.
type File struct {
	Database string  `yaml:"database"`
	Train    Lists   `yaml:"train"`
	Devel    Lists   `yaml:"devel"`
	Test     Lists   `yaml:"test"`
	Enroll   []Entry `yaml:"enroll"`
}

// Protocol is a validated protocol file.
type Protocol struct {
	Name     string
	Database types.DatabaseKind
	splits   map[types.Split]Lists
	enroll   []types.Video
}

// Load reads and validates a protocol file. The protocol name is the file
// name without extension.
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: protocol %s", types.ErrMissingFile, path)
		}
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("protocol %s: %w", path, err)
	}
	p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p, nil
}

// Parse validates protocol YAML. Every entry needs an ID, an ID may appear in
// only one split/class list, and entries without a path default to <id>.mov.
func Parse(data []byte) (*Protocol, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	kind, err := types.ParseDatabaseKind(f.Database)
	if err != nil {
		return nil, err
	}

	p := &Protocol{
		Database: kind,
		splits: map[types.Split]Lists{
			types.Train: f.Train,
			types.Devel: f.Devel,
			types.Test:  f.Test,
		},
	}

	seen := make(map[string]string)
	check := func(where string, entries []Entry) error {
		for i := range entries {
			e := &entries[i]
			e.ID = strings.TrimSpace(e.ID)
			if e.ID == "" {
				return fmt.Errorf("%s: entry %d has no id", where, i)
			}
			if prev, dup := seen[e.ID]; dup {
				return fmt.Errorf("%s: video %q already listed in %s", where, e.ID, prev)
			}
			seen[e.ID] = where
			if e.Path == "" {
				e.Path = e.ID + ".mov"
			}
			if e.Rotated && !kind.SupportsRotation() {
				return fmt.Errorf("%s: video %q is marked rotated but %s videos are never rotated", where, e.ID, kind)
			}
		}
		return nil
	}
	for _, s := range types.Splits {
		l := p.splits[s]
		if err := check(s.String()+"/real", l.Real); err != nil {
			return nil, err
		}
		if err := check(s.String()+"/attack", l.Attack); err != nil {
			return nil, err
		}
	}

	// Enrollment videos are real accesses from the train population and may
	// repeat train IDs.
	for i, e := range f.Enroll {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("enroll: entry %d has no id", i)
		}
		v := types.Video(e)
		if v.Path == "" {
			v.Path = v.ID + ".mov"
		}
		p.enroll = append(p.enroll, v)
	}
	return p, nil
}

// Videos returns the videos of one split and class in file order.
func (p *Protocol) Videos(s types.Split, c types.Class) []types.Video {
	l := p.splits[s]
	src := l.Real
	if c == types.Attack {
		src = l.Attack
	}
	out := make([]types.Video, len(src))
	for i, e := range src {
		out[i] = types.Video(e)
	}
	return out
}

// Enroll returns the enrollment videos.
func (p *Protocol) Enroll() []types.Video {
	return append([]types.Video(nil), p.enroll...)
}

// All returns every split video once, train before devel before test and
// real before attack within a split.
func (p *Protocol) All() []types.Video {
	var out []types.Video
	for _, s := range types.Splits {
		out = append(out, p.Videos(s, types.Real)...)
		out = append(out, p.Videos(s, types.Attack)...)
	}
	return out
}

// Count returns the number of videos in one split and class.
func (p *Protocol) Count(s types.Split, c types.Class) int {
	if c == types.Real {
		return len(p.splits[s].Real)
	}
	return len(p.splits[s].Attack)
}
