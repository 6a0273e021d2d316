package arrayio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/types"
)

func TestWriteReadMatrixKeepsNaN(t *testing.T) {
	path := FilePath(t.TempDir(), "real/client001")
	rows := [][]float64{
		{0.25, 0.75},
		{math.NaN(), math.NaN()},
		{1, 0},
	}

	require.NoError(t, WriteMatrix(path, rows))
	got, err := ReadMatrix(path)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []float64{0.25, 0.75}, got[0])
	assert.True(t, math.IsNaN(got[1][0]) && math.IsNaN(got[1][1]))
	assert.Equal(t, []float64{1, 0}, got[2])
}

func TestWriteMatrixRejectsRaggedRows(t *testing.T) {
	err := WriteMatrix(filepath.Join(t.TempDir(), "x.cbor"), [][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestReadMatrixMissingFile(t *testing.T) {
	_, err := ReadMatrix(filepath.Join(t.TempDir(), "absent.cbor"))
	assert.ErrorIs(t, err, types.ErrMissingFile)
}

func TestReadColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.cbor")
	require.NoError(t, WriteColumn(path, []float64{1, 0, 1}))

	got, err := ReadColumn(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, got)

	require.NoError(t, WriteMatrix(path, [][]float64{{1, 2}}))
	_, err = ReadColumn(path)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestNamedArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.cbor")
	in := map[string][][]float64{
		"model_hist_real": {{0.1, 0.2, 0.7}},
		"bias":            {{-0.5}},
	}
	require.NoError(t, WriteNamed(path, in))

	out, err := ReadNamed(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeUint8Mask(t *testing.T) {
	// Masks written by the python extractor use the uint8 typed array tag.
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(3), uint64(1)},
			cbor.Tag{Number: tagUint8, Content: []byte{1, 0, 1}},
		},
	}
	data, err := cbor.Marshal(value)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mask.cbor")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := ReadColumn(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, got)
}

func TestDecodeMatrixShapeMismatch(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(2), uint64(2)},
			cbor.Tag{Number: tagUint8, Content: []byte{1, 2, 3}},
		},
	}
	_, err := decodeMatrix(value)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}
