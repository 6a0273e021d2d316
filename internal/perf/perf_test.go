package perf

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/types"
)

func TestEvaluateConcreteScenario(t *testing.T) {
	report, err := Evaluate(
		[]float64{0.9, 0.8, 0.95},
		[]float64{0.1, 0.3, 0.2},
		[]float64{0.6},
		[]float64{0.7},
	)
	require.NoError(t, err)

	assert.InDelta(t, 0.55, report.Threshold, 1e-9)
	assert.Equal(t, 0.0, report.Devel.FAR)
	assert.Equal(t, 0.0, report.Devel.FRR)
	assert.Equal(t, 0.0, report.Devel.HTER())

	assert.Equal(t, 1.0, report.Test.FAR)
	assert.Equal(t, 0.0, report.Test.FRR)
	assert.InDelta(t, 0.5, report.Test.HTER(), 1e-12)

	want := " \n" +
		" threshold: 0.5500\n" +
		" dev:  FAR 0.00% (0/3) | FRR 0.00% (0/3) | HTER 0.00%\n" +
		" test: FAR 100.00% (1/1) | FRR 0.00% (0/1) | HTER 50.00%\n"
	assert.Equal(t, want, report.String())
}

func TestEERSeparatedScoresGiveZeroErrors(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	draw := func(n int, lo float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = lo + r.Float64()
		}
		return s
	}

	for run := 0; run < 50; run++ {
		devReal, devAttack := draw(1+r.Intn(40), 2), draw(1+r.Intn(40), 0)
		testReal, testAttack := draw(1+r.Intn(40), 2), draw(1+r.Intn(40), 0)

		report, err := Evaluate(devReal, devAttack, testReal, testAttack)
		require.NoError(t, err)
		assert.Zero(t, report.Devel.FAR)
		assert.Zero(t, report.Devel.FRR)
		assert.Zero(t, report.Test.FAR)
		assert.Zero(t, report.Test.FRR)
	}
}

func TestEERAdjacentFloatScores(t *testing.T) {
	attack := 1.0
	genuine := math.Nextafter(attack, 2)

	thres, err := EERThreshold([]float64{attack}, []float64{genuine})
	require.NoError(t, err)
	assert.Equal(t, genuine, thres)

	far, frr := FARFRR([]float64{attack}, []float64{genuine}, thres)
	assert.Zero(t, far)
	assert.Zero(t, frr)
}

func TestHTERSymmetryUnderRoleSwapAndNegation(t *testing.T) {
	devReal := []float64{0.9, 0.8, 0.6, 0.4}
	devAttack := []float64{0.1, 0.2, 0.5, 0.7}
	testReal := []float64{0.3, 0.9}
	testAttack := []float64{0.6, 0.1}

	neg := func(s []float64) []float64 {
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = -v
		}
		return out
	}

	a, err := Evaluate(devReal, devAttack, testReal, testAttack)
	require.NoError(t, err)
	b, err := Evaluate(neg(devAttack), neg(devReal), neg(testAttack), neg(testReal))
	require.NoError(t, err)

	assert.InDelta(t, 0.25, a.Devel.HTER(), 1e-12)
	assert.InDelta(t, a.Devel.HTER(), b.Devel.HTER(), 1e-12)
	assert.InDelta(t, a.Test.HTER(), b.Test.HTER(), 1e-12)
	assert.InDelta(t, -a.Threshold, b.Threshold, 1e-12)
}

func TestEERThresholdMinimizesGap(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for run := 0; run < 30; run++ {
		neg := make([]float64, 5+r.Intn(30))
		pos := make([]float64, 5+r.Intn(30))
		for i := range neg {
			neg[i] = math.Round(r.NormFloat64()*10) / 10
		}
		for i := range pos {
			pos[i] = 1 + math.Round(r.NormFloat64()*10)/10
		}

		thres, err := EERThreshold(neg, pos)
		require.NoError(t, err)
		far, frr := FARFRR(neg, pos, thres)
		gap := math.Abs(far - frr)

		// No threshold on a fine grid does better.
		for tt := -5.0; tt <= 6.0; tt += 0.01 {
			f, g := FARFRR(neg, pos, tt)
			assert.GreaterOrEqual(t, math.Abs(f-g)+1e-12, gap, "threshold %.2f beats %.4f", tt, thres)
		}
	}
}

func TestEERThresholdEmptyDataset(t *testing.T) {
	_, err := EERThreshold(nil, []float64{1})
	assert.ErrorIs(t, err, types.ErrEmptyDataset)

	_, err = Evaluate([]float64{1}, nil, nil, nil)
	assert.ErrorIs(t, err, types.ErrEmptyDataset)
}

func TestEvaluateRejectsNaNScores(t *testing.T) {
	_, err := Evaluate([]float64{1, math.NaN()}, []float64{0}, nil, nil)
	assert.ErrorIs(t, err, types.ErrCorruptFrame)

	_, err = Evaluate([]float64{1}, []float64{0}, []float64{math.NaN()}, nil)
	assert.ErrorIs(t, err, types.ErrCorruptFrame)
}

func TestEvaluateEmptyTestSplit(t *testing.T) {
	report, err := Evaluate([]float64{1}, []float64{0}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, report.Test.HTER())
	assert.Equal(t, 0, report.Test.Attacks)
}

func TestWriteTable(t *testing.T) {
	report := &Report{
		Threshold: -1.23456,
		Devel:     Rates{FAR: 0.1, FRR: 0.2, FalseAccepts: 1, Attacks: 10, FalseRejects: 2, Genuine: 10},
		Notes:     []string{"EER @devel - (energy kept after PCA = 0.99)"},
	}
	dir := filepath.Join(t.TempDir(), "res")
	path, err := report.WriteTable(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, TableFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	assert.Equal(t, "EER @devel - (energy kept after PCA = 0.99)", lines[1])
	assert.Equal(t, " threshold: -1.2346", lines[2])
	assert.Equal(t, " dev:  FAR 10.00% (1/10) | FRR 20.00% (2/10) | HTER 15.00%", lines[3])
}
