package ml

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// SVMParams controls linear SVM training.
type SVMParams struct {
	Lambda float64 // regularization strength
	Epochs int     // passes over the training set
	Seed   int64   // sample order seed; equal seeds give equal machines
}

// DefaultSVMParams are used by svmtrain when no flags override them.
var DefaultSVMParams = SVMParams{Lambda: 1e-4, Epochs: 50, Seed: 1}

// LinearSVM trains a soft-margin linear SVM with Pegasos stochastic
// sub-gradient descent. Real accesses are the positive class. The bias is
// the weight of a constant extra feature and is regularized with the rest.
func LinearSVM(real, attack [][]float64, p SVMParams) ([]float64, float64, error) {
	if len(real) == 0 || len(attack) == 0 {
		return nil, 0, fmt.Errorf("%w: SVM needs both classes (got %d real, %d attack)", types.ErrEmptyDataset, len(real), len(attack))
	}
	if p.Lambda <= 0 {
		return nil, 0, fmt.Errorf("SVM lambda must be positive, got %v", p.Lambda)
	}
	if p.Epochs <= 0 {
		return nil, 0, fmt.Errorf("SVM epochs must be positive, got %d", p.Epochs)
	}

	n := len(real) + len(attack)
	sample := func(i int) ([]float64, float64) {
		if i < len(real) {
			return real[i], 1
		}
		return attack[i-len(real)], -1
	}

	r := rand.New(rand.NewSource(p.Seed))
	w := make([]float64, len(real[0]))
	var b float64
	t := 1
	for epoch := 0; epoch < p.Epochs; epoch++ {
		for _, i := range r.Perm(n) {
			x, y := sample(i)
			eta := 1 / (p.Lambda * float64(t))
			margin := y * (floats.Dot(w, x) + b)
			shrink := 1 - eta*p.Lambda
			floats.Scale(shrink, w)
			b *= shrink
			if margin < 1 {
				floats.AddScaled(w, eta*y, x)
				b += eta * y
			}
			t++
		}
	}
	return w, b, nil
}
