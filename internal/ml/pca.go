package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// PCA projects centered features onto the leading principal components.
type PCA struct {
	Mean   []float64
	Basis  *mat.Dense // D × k, one component per column
	Energy float64    // fraction of variance the basis keeps
}

// FitPCA keeps the smallest number of components whose eigenvalues add up to
// at least energy of the total variance.
func FitPCA(rows [][]float64, energy float64) (*PCA, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: PCA needs at least two training rows, got %d", types.ErrEmptyDataset, len(rows))
	}
	if energy <= 0 || energy > 1 {
		return nil, fmt.Errorf("PCA energy must be in (0, 1], got %v", energy)
	}

	n, dim := len(rows), len(rows[0])
	mean := make([]float64, dim)
	for _, row := range rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := mat.NewDense(n, dim, nil)
	for i, row := range rows {
		for j, v := range row {
			centered.Set(i, j, v-mean[j])
		}
	}

	cov := mat.NewSymDense(dim, nil)
	cov.SymOuterK(1/float64(n-1), centered.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, errors.New("PCA eigendecomposition did not converge")
	}
	values := eig.Values(nil) // ascending
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	var total float64
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}

	k, kept := 0, 0.0
	for i := len(values) - 1; i >= 0; i-- {
		k++
		if values[i] > 0 {
			kept += values[i]
		}
		if total == 0 || kept/total >= energy {
			break
		}
	}

	basis := mat.NewDense(dim, k, nil)
	for c := 0; c < k; c++ {
		src := len(values) - 1 - c
		for r := 0; r < dim; r++ {
			basis.Set(r, c, vectors.At(r, src))
		}
	}
	return &PCA{Mean: mean, Basis: basis, Energy: energy}, nil
}

// Components returns the output dimensionality.
func (p *PCA) Components() int {
	_, k := p.Basis.Dims()
	return k
}

// Apply projects x onto the basis.
func (p *PCA) Apply(x []float64) []float64 {
	centered := make([]float64, len(x))
	for j, v := range x {
		centered[j] = v - p.Mean[j]
	}
	var out mat.VecDense
	out.MulVec(p.Basis.T(), mat.NewVecDense(len(centered), centered))
	return out.RawVector().Data
}
