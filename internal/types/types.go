package types

import (
	"fmt"
	"strings"
)

// Class separates genuine (real access) videos from spoofing attacks.
type Class int

const (
	Real Class = iota
	Attack
)

func (c Class) String() string {
	if c == Real {
		return "real"
	}
	return "attack"
}

// Split is one of the protocol subsets a video belongs to.
type Split int

const (
	Train Split = iota
	Devel
	Test
)

// Splits lists every split in the order stages process them.
var Splits = []Split{Train, Devel, Test}

func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Devel:
		return "devel"
	default:
		return "test"
	}
}

// DatabaseKind identifies the face anti-spoofing database a protocol was built from.
// Extractors switch on it for face-location and rotation handling.
type DatabaseKind string

const (
	ReplayAttack DatabaseKind = "replay"
	CasiaFASD    DatabaseKind = "casia"
	MSUMFSD      DatabaseKind = "msu"
)

// ParseDatabaseKind accepts the short names used in protocol files.
func ParseDatabaseKind(s string) (DatabaseKind, error) {
	switch k := DatabaseKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ReplayAttack, CasiaFASD, MSUMFSD:
		return k, nil
	default:
		return "", fmt.Errorf("unknown database kind %q (want replay, casia or msu)", s)
	}
}

// AbsoluteFaceFiles reports whether face-location files are listed with absolute
// paths instead of being relative to the video input directory.
func (k DatabaseKind) AbsoluteFaceFiles() bool {
	return k == CasiaFASD
}

// SupportsRotation reports whether videos of this database may be stored upside down.
func (k DatabaseKind) SupportsRotation() bool {
	return k == MSUMFSD
}

// Video is one entry of a protocol list.
type Video struct {
	ID       string `yaml:"id" json:"id"`             // relative path without extension, e.g. real/client001
	Path     string `yaml:"path" json:"path"`         // video file, relative to the input dir unless absolute
	FaceFile string `yaml:"facefile" json:"facefile"` // face-location file
	Rotated  bool   `yaml:"rotated" json:"rotated"`
}
