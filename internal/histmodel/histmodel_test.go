package histmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/types"
)

func TestMean(t *testing.T) {
	got, err := Mean([][]float64{
		{0.2, 0.8, 0},
		{0.4, 0.4, 0.2},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, 0.6, 0.1}, got, 1e-12)
}

func TestMeanEmptyDataset(t *testing.T) {
	got, err := Mean(nil)
	assert.ErrorIs(t, err, types.ErrEmptyDataset)
	assert.Nil(t, got)
}

func TestMeanRaggedRows(t *testing.T) {
	_, err := Mean([][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, map[string][]float64{RealModel: {0.5, 0.25, 0.25}}))

	got, err := Load(dir, RealModel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, got)

	_, err = Load(dir, "model_hist_attack")
	assert.ErrorIs(t, err, types.ErrMissingFile)

	_, err = Load(t.TempDir(), RealModel)
	assert.ErrorIs(t, err, types.ErrMissingFile)
}
