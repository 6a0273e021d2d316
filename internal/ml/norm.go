package ml

import (
	"fmt"
	"math"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// MinMax rescales every feature into [-1, 1] using ranges fitted on training data.
type MinMax struct {
	Mins []float64
	Maxs []float64
}

// FitMinMax computes per-column minima and maxima.
func FitMinMax(rows [][]float64) (*MinMax, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: min-max normalization needs training rows", types.ErrEmptyDataset)
	}
	dim := len(rows[0])
	n := &MinMax{Mins: make([]float64, dim), Maxs: make([]float64, dim)}
	copy(n.Mins, rows[0])
	copy(n.Maxs, rows[0])
	for _, row := range rows[1:] {
		for j, v := range row {
			n.Mins[j] = math.Min(n.Mins[j], v)
			n.Maxs[j] = math.Max(n.Maxs[j], v)
		}
	}
	return n, nil
}

// Apply maps x into [-1, 1]. Constant features map to 0.
func (n *MinMax) Apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		span := n.Maxs[j] - n.Mins[j]
		if span == 0 {
			continue
		}
		out[j] = 2*(v-n.Mins[j])/span - 1
	}
	return out
}

// ZScore standardizes features to zero mean and unit variance.
type ZScore struct {
	Mean []float64
	Std  []float64
}

// FitZScore computes per-column mean and standard deviation. Zero deviations
// are replaced by 1 so constant features pass through centered.
func FitZScore(rows [][]float64) (*ZScore, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: standard normalization needs training rows", types.ErrEmptyDataset)
	}
	dim := len(rows[0])
	z := &ZScore{Mean: make([]float64, dim), Std: make([]float64, dim)}
	for _, row := range rows {
		for j, v := range row {
			z.Mean[j] += v
		}
	}
	nrows := float64(len(rows))
	for j := range z.Mean {
		z.Mean[j] /= nrows
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - z.Mean[j]
			z.Std[j] += d * d
		}
	}
	for j := range z.Std {
		z.Std[j] = math.Sqrt(z.Std[j] / nrows)
		if z.Std[j] == 0 {
			z.Std[j] = 1
		}
	}
	return z, nil
}

// Apply standardizes x.
func (z *ZScore) Apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - z.Mean[j]) / z.Std[j]
	}
	return out
}
