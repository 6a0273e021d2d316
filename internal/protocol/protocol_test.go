package protocol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/types"
)

const sample = `
database: msu
train:
  real: [real/client001, real/client002]
  attack:
    - id: attack/client001_print
      path: attack/client001_print.mp4
      facefile: faces/client001_print.face
      rotated: true
devel:
  real: [real/client010]
  attack: [attack/client010_video]
test:
  real: [real/client020]
  attack: []
enroll: [real/client001]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, types.MSUMFSD, p.Database)

	train := p.Videos(types.Train, types.Real)
	require.Len(t, train, 2)
	assert.Equal(t, types.Video{ID: "real/client001", Path: "real/client001.mov"}, train[0])

	attack := p.Videos(types.Train, types.Attack)
	require.Len(t, attack, 1)
	assert.Equal(t, types.Video{
		ID:       "attack/client001_print",
		Path:     "attack/client001_print.mp4",
		FaceFile: "faces/client001_print.face",
		Rotated:  true,
	}, attack[0])

	assert.Equal(t, 0, p.Count(types.Test, types.Attack))
	assert.Empty(t, p.Videos(types.Test, types.Attack))
	assert.Len(t, p.Enroll(), 1)

	var ids []string
	for _, v := range p.All() {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{
		"real/client001", "real/client002", "attack/client001_print",
		"real/client010", "attack/client010_video",
		"real/client020",
	}, ids)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown database", yaml: "database: nuaa\n"},
		{name: "duplicate id", yaml: "database: replay\ntrain: {real: [a]}\ntest: {attack: [a]}\n"},
		{name: "missing id", yaml: "database: replay\ntrain:\n  real:\n    - path: x.mov\n"},
		{name: "rotation unsupported", yaml: "database: replay\ntrain:\n  real:\n    - {id: a, rotated: true}\n"},
		{name: "malformed", yaml: "database: [replay\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadNamesProtocolAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grandtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "grandtest", p.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, types.ErrMissingFile)
}
