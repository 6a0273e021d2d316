// Package histmodel builds reference histograms by averaging aligned feature
// vectors and stores them in a named-array model file.
package histmodel

import (
	"fmt"
	"path/filepath"

	"github.com/andresmejia3/spoofguard/internal/arrayio"
	"github.com/andresmejia3/spoofguard/internal/types"
)

const (
	// FileName is the model file inside the model directory.
	FileName = "histmodelsfile" + arrayio.Ext
	// RealModel is the key of the real-access reference histogram.
	RealModel = "model_hist_real"
)

// Mean returns the per-column mean of rows.
func Mean(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: cannot average zero feature vectors", types.ErrEmptyDataset)
	}
	dim := len(rows[0])
	sum := make([]float64, dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", types.ErrDimensionMismatch, i, len(row), dim)
		}
		for j, v := range row {
			sum[j] += v
		}
	}
	n := float64(len(rows))
	for j := range sum {
		sum[j] /= n
	}
	return sum, nil
}

// Path returns the model file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Save writes named models, each as a [1 × D] array.
func Save(dir string, models map[string][]float64) error {
	arrays := make(map[string][][]float64, len(models))
	for name, hist := range models {
		arrays[name] = [][]float64{hist}
	}
	return arrayio.WriteNamed(Path(dir), arrays)
}

// Load reads one named model from the model file in dir.
func Load(dir, name string) ([]float64, error) {
	arrays, err := arrayio.ReadNamed(Path(dir))
	if err != nil {
		return nil, err
	}
	rows, ok := arrays[name]
	if !ok || len(rows) == 0 {
		return nil, fmt.Errorf("%w: model %q not found in %s", types.ErrMissingFile, name, Path(dir))
	}
	return rows[0], nil
}
