package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// ldaRidge is added to the within-class scatter diagonal, relative to its
// mean diagonal entry. Histogram features sum to a constant, which leaves the
// scatter singular without it.
const ldaRidge = 1e-6

// FisherLDA returns the two-class Fisher discriminant w and a bias placing
// the decision boundary halfway between the projected class means. Real
// accesses project above the boundary.
func FisherLDA(real, attack [][]float64) ([]float64, float64, error) {
	if len(real) == 0 || len(attack) == 0 {
		return nil, 0, fmt.Errorf("%w: LDA needs both classes (got %d real, %d attack)", types.ErrEmptyDataset, len(real), len(attack))
	}
	dim := len(real[0])
	mr, ma := columnMean(real), columnMean(attack)

	sw := mat.NewSymDense(dim, nil)
	addScatter(sw, real, mr)
	addScatter(sw, attack, ma)

	var trace float64
	for i := 0; i < dim; i++ {
		trace += sw.At(i, i)
	}
	ridge := ldaRidge * trace / float64(dim)
	if ridge == 0 {
		ridge = ldaRidge
	}
	for i := 0; i < dim; i++ {
		sw.SetSym(i, i, sw.At(i, i)+ridge)
	}

	diff := make([]float64, dim)
	floats.SubTo(diff, mr, ma)

	var chol mat.Cholesky
	if ok := chol.Factorize(sw); !ok {
		return nil, 0, errors.New("LDA within-class scatter is not positive definite")
	}
	var wv mat.VecDense
	if err := chol.SolveVecTo(&wv, mat.NewVecDense(dim, diff)); err != nil {
		return nil, 0, fmt.Errorf("LDA solve: %w", err)
	}

	w := make([]float64, dim)
	copy(w, wv.RawVector().Data)
	if norm := floats.Norm(w, 2); norm > 0 {
		floats.Scale(1/norm, w)
	}

	mid := make([]float64, dim)
	floats.AddTo(mid, mr, ma)
	floats.Scale(0.5, mid)
	return w, -floats.Dot(w, mid), nil
}

func columnMean(rows [][]float64) []float64 {
	mean := make([]float64, len(rows[0]))
	for _, row := range rows {
		floats.Add(mean, row)
	}
	floats.Scale(1/float64(len(rows)), mean)
	return mean
}

func addScatter(sw *mat.SymDense, rows [][]float64, mean []float64) {
	d := make([]float64, len(mean))
	for _, row := range rows {
		floats.SubTo(d, row, mean)
		sw.SymRankOne(sw, 1, mat.NewVecDense(len(d), d))
	}
}
