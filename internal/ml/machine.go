// Package ml trains the linear classifiers used to score frames: optional
// min-max and standard normalization, optional PCA, then Fisher LDA or a
// linear SVM. Trained machines are persisted as named arrays.
package ml

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/andresmejia3/spoofguard/internal/arrayio"
	"github.com/andresmejia3/spoofguard/internal/types"
)

// Machine file names inside an output directory.
const (
	SVMFile = "svm_machine" + arrayio.Ext
	LDAFile = "lda_machine" + arrayio.Ext
)

// Preprocess selects the transforms fitted on training data before the classifier.
type Preprocess struct {
	MinMax bool
	ZScore bool
	PCA    bool
	Energy float64 // variance fraction kept by PCA
}

// Machine is a linear decision function behind a fitted preprocessing chain.
// Decision applies min-max, then z-score, then PCA, then w·x + b.
type Machine struct {
	Weights []float64
	Bias    float64
	MinMax  *MinMax
	ZScore  *ZScore
	PCA     *PCA
}

// Transform runs x through the preprocessing chain.
func (m *Machine) Transform(x []float64) []float64 {
	if m.MinMax != nil {
		x = m.MinMax.Apply(x)
	}
	if m.ZScore != nil {
		x = m.ZScore.Apply(x)
	}
	if m.PCA != nil {
		x = m.PCA.Apply(x)
	}
	return x
}

// Decision implements scoring.Classifier.
func (m *Machine) Decision(x []float64) float64 {
	return floats.Dot(m.Weights, m.Transform(x)) + m.Bias
}

// InputDim returns the feature width the machine expects.
func (m *Machine) InputDim() int {
	switch {
	case m.MinMax != nil:
		return len(m.MinMax.Mins)
	case m.ZScore != nil:
		return len(m.ZScore.Mean)
	case m.PCA != nil:
		return len(m.PCA.Mean)
	default:
		return len(m.Weights)
	}
}

// Trainer fits the weights and bias of a linear machine on preprocessed rows.
type Trainer func(real, attack [][]float64) ([]float64, float64, error)

// LDATrainer adapts FisherLDA to Trainer.
func LDATrainer() Trainer {
	return FisherLDA
}

// SVMTrainer adapts LinearSVM to Trainer.
func SVMTrainer(p SVMParams) Trainer {
	return func(real, attack [][]float64) ([]float64, float64, error) {
		return LinearSVM(real, attack, p)
	}
}

// Train fits the preprocessing chain on the union of both training classes,
// then fits the classifier on the transformed rows.
func Train(real, attack [][]float64, pre Preprocess, fit Trainer) (*Machine, error) {
	if len(real) == 0 || len(attack) == 0 {
		return nil, fmt.Errorf("%w: training needs both classes (got %d real, %d attack)", types.ErrEmptyDataset, len(real), len(attack))
	}
	m := &Machine{}
	all := append(append(make([][]float64, 0, len(real)+len(attack)), real...), attack...)

	var err error
	if pre.MinMax {
		if m.MinMax, err = FitMinMax(all); err != nil {
			return nil, err
		}
		all = applyAll(m.MinMax.Apply, all)
	}
	if pre.ZScore {
		if m.ZScore, err = FitZScore(all); err != nil {
			return nil, err
		}
		all = applyAll(m.ZScore.Apply, all)
	}
	if pre.PCA {
		if m.PCA, err = FitPCA(all, pre.Energy); err != nil {
			return nil, err
		}
		all = applyAll(m.PCA.Apply, all)
	}

	w, b, err := fit(all[:len(real)], all[len(real):])
	if err != nil {
		return nil, err
	}
	m.Weights, m.Bias = w, b
	return m, nil
}

func applyAll(f func([]float64) []float64, rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = f(row)
	}
	return out
}

// Save writes the machine to dir/name as named arrays.
func (m *Machine) Save(dir, name string) (string, error) {
	arrays := map[string][][]float64{
		"weights": {m.Weights},
		"bias":    {{m.Bias}},
	}
	if m.MinMax != nil {
		arrays["mins"] = [][]float64{m.MinMax.Mins}
		arrays["maxs"] = [][]float64{m.MinMax.Maxs}
	}
	if m.ZScore != nil {
		arrays["mean"] = [][]float64{m.ZScore.Mean}
		arrays["std"] = [][]float64{m.ZScore.Std}
	}
	if m.PCA != nil {
		arrays["pca_mean"] = [][]float64{m.PCA.Mean}
		arrays["pca_basis"] = denseRows(m.PCA.Basis)
		arrays["pca_energy"] = [][]float64{{m.PCA.Energy}}
	}
	path := filepath.Join(dir, name)
	return path, arrayio.WriteNamed(path, arrays)
}

// LoadMachine reads a machine written by Save.
func LoadMachine(path string) (*Machine, error) {
	arrays, err := arrayio.ReadNamed(path)
	if err != nil {
		return nil, err
	}
	vec := func(key string) ([]float64, bool, error) {
		rows, ok := arrays[key]
		if !ok {
			return nil, false, nil
		}
		if len(rows) != 1 {
			return nil, true, fmt.Errorf("%w: %s: %q has %d rows, want 1", types.ErrDimensionMismatch, path, key, len(rows))
		}
		return rows[0], true, nil
	}

	m := &Machine{}
	weights, ok, err := vec("weights")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: machine has no weights", path)
	}
	bias, ok, err := vec("bias")
	if err != nil || !ok || len(bias) != 1 {
		return nil, fmt.Errorf("%s: machine has no scalar bias", path)
	}
	m.Weights, m.Bias = weights, bias[0]

	if mins, ok, err := vec("mins"); err != nil {
		return nil, err
	} else if ok {
		maxs, _, err := vec("maxs")
		if err != nil || len(maxs) != len(mins) {
			return nil, fmt.Errorf("%w: %s: mins and maxs differ in length", types.ErrDimensionMismatch, path)
		}
		m.MinMax = &MinMax{Mins: mins, Maxs: maxs}
	}
	if mean, ok, err := vec("mean"); err != nil {
		return nil, err
	} else if ok {
		std, _, err := vec("std")
		if err != nil || len(std) != len(mean) {
			return nil, fmt.Errorf("%w: %s: mean and std differ in length", types.ErrDimensionMismatch, path)
		}
		m.ZScore = &ZScore{Mean: mean, Std: std}
	}
	if pmean, ok, err := vec("pca_mean"); err != nil {
		return nil, err
	} else if ok {
		basis := arrays["pca_basis"]
		if len(basis) != len(pmean) || len(basis) == 0 {
			return nil, fmt.Errorf("%w: %s: PCA basis has %d rows, want %d", types.ErrDimensionMismatch, path, len(basis), len(pmean))
		}
		p := &PCA{Mean: pmean, Basis: mat.NewDense(len(basis), len(basis[0]), nil)}
		for i, row := range basis {
			p.Basis.SetRow(i, row)
		}
		if e, ok, _ := vec("pca_energy"); ok && len(e) == 1 {
			p.Energy = e[0]
		}
		m.PCA = p
	}
	return m, nil
}

func denseRows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, d)
	}
	return rows
}
