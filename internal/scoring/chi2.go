// Package scoring turns feature vectors into scores where higher means more
// genuine-like.
package scoring

import (
	"fmt"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// ChiSquare returns 0.5 * Σ (r_i - x_i)^2 / (r_i + x_i), skipping bins whose
// denominator is zero.
func ChiSquare(r, x []float64) (float64, error) {
	if len(r) != len(x) {
		return 0, fmt.Errorf("%w: reference has %d bins, candidate has %d", types.ErrDimensionMismatch, len(r), len(x))
	}
	var d float64
	for i := range r {
		den := r[i] + x[i]
		if den == 0 {
			continue
		}
		diff := r[i] - x[i]
		d += diff * diff / den
	}
	return 0.5 * d, nil
}

// ChiSquareScores compares every row against the reference histogram. The
// distances are negated so similar histograms score higher.
func ChiSquareScores(model []float64, rows [][]float64) ([]float64, error) {
	scores := make([]float64, len(rows))
	for i, row := range rows {
		d, err := ChiSquare(model, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		scores[i] = -d
	}
	return scores, nil
}
