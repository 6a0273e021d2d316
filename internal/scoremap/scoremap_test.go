package scoremap

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/arrayio"
	"github.com/andresmejia3/spoofguard/internal/dataset"
	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/types"
)

func TestScatter(t *testing.T) {
	valid := [][]bool{
		{true, false, true},
		{false},
		{true},
	}
	out, err := Scatter(valid, []float64{10, 11, 12})
	require.NoError(t, err)

	assert.Equal(t, 10.0, out[0][0])
	assert.True(t, math.IsNaN(out[0][1]))
	assert.Equal(t, 11.0, out[0][2])
	assert.True(t, math.IsNaN(out[1][0]))
	assert.Equal(t, []float64{12}, out[2])
}

func TestScatterAlignmentViolation(t *testing.T) {
	valid := [][]bool{{true, true}, {true}}

	_, err := Scatter(valid, []float64{1, 2})
	assert.ErrorIs(t, err, types.ErrAlignmentViolation)

	_, err = Scatter(valid, []float64{1, 2, 3, 4})
	assert.ErrorIs(t, err, types.ErrAlignmentViolation)
}

// TestAggregateThenMapRoundTrip feeds synthetic scores 0..k-1 through the
// aggregated order and checks every frame lands where it came from.
func TestAggregateThenMapRoundTrip(t *testing.T) {
	masks := [][]bool{
		{true, false, true, true},
		{false, false, false},
		{true},
		{false, true, false, true, true},
		{},
	}

	for _, mode := range []features.Mode{features.MaskFiltered, features.ValidOnly} {
		t.Run(string(mode), func(t *testing.T) {
			featDir := t.TempDir()
			scoreDir := filepath.Join(t.TempDir(), "scores")

			videos := make([]types.Video, len(masks))
			for v, mask := range masks {
				rows := make([][]float64, len(mask))
				for i := range rows {
					rows[i] = []float64{float64(v*100 + i)}
				}
				videos[v] = types.Video{ID: fmt.Sprintf("attack/fixed/video%02d", v)}
				require.NoError(t, features.Save(featDir, videos[v].ID, &features.Video{Rows: rows, Valid: mask}))
			}

			m, err := dataset.Aggregate(context.Background(), dataset.Request{Dir: featDir, Videos: videos, Mode: mode, Workers: 3})
			require.NoError(t, err)

			scores := make([]float64, m.Len())
			for k := range scores {
				scores[k] = float64(k)
			}
			require.NoError(t, Map(context.Background(), Request{FeatureDir: featDir, ScoreDir: scoreDir, Videos: videos, Scores: scores, Mode: mode}))

			k := 0
			for v, mask := range masks {
				got, err := arrayio.ReadColumn(arrayio.FilePath(scoreDir, videos[v].ID))
				require.NoError(t, err)
				require.Len(t, got, len(mask))
				for i, ok := range mask {
					if ok {
						assert.Equal(t, float64(k), got[i], "video %d frame %d", v, i)
						// The aggregated row of that score is the original frame.
						assert.Equal(t, float64(v*100+i), m.Rows[k][0])
						k++
					} else {
						assert.True(t, math.IsNaN(got[i]), "video %d frame %d should be NaN", v, i)
					}
				}
			}
		})
	}
}

func TestMapWritesNothingOnMismatch(t *testing.T) {
	featDir := t.TempDir()
	scoreDir := filepath.Join(t.TempDir(), "scores")
	require.NoError(t, features.Save(featDir, "v", &features.Video{Rows: [][]float64{{1}, {2}}, Valid: []bool{true, true}}))

	err := Map(context.Background(), Request{FeatureDir: featDir, ScoreDir: scoreDir, Videos: []types.Video{{ID: "v"}}, Scores: []float64{1}})
	require.ErrorIs(t, err, types.ErrAlignmentViolation)

	_, statErr := os.Stat(scoreDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMapMissingMask(t *testing.T) {
	err := Map(context.Background(), Request{FeatureDir: t.TempDir(), ScoreDir: t.TempDir(), Videos: []types.Video{{ID: "nope"}}})
	assert.ErrorIs(t, err, types.ErrMissingFile)
}
