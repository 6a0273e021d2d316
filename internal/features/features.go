// Package features holds the per-video frame feature store: one feature vector
// per frame plus a parallel validity mask. Invalid frames carry NaN rows.
package features

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/andresmejia3/spoofguard/internal/arrayio"
	"github.com/andresmejia3/spoofguard/internal/types"
)

// MaskDir is the sub-directory of a feature directory that holds validity masks.
const MaskDir = "validframes"

// Video is the feature matrix of one video and its validity mask, in frame order.
type Video struct {
	Rows  [][]float64
	Valid []bool
}

// Dim returns the feature width, or 0 for a video without frames.
func (v *Video) Dim() int {
	if len(v.Rows) == 0 {
		return 0
	}
	return len(v.Rows[0])
}

// NumValid counts frames flagged valid.
func (v *Video) NumValid() int {
	n := 0
	for _, ok := range v.Valid {
		if ok {
			n++
		}
	}
	return n
}

// MarkInvalid overwrites every invalid frame with a marker row so files
// stay self-describing for consumers that never read the mask.
func (v *Video) MarkInvalid() {
	for i, ok := range v.Valid {
		if !ok {
			v.Rows[i] = Marker(len(v.Rows[i]))
		}
	}
}

// Marker returns a row of n NaNs.
func Marker(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

// IsMarker reports whether every element of row is NaN. An empty row is not a marker.
func IsMarker(row []float64) bool {
	if len(row) == 0 {
		return false
	}
	for _, v := range row {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// hasNaN reports whether any element of row is NaN.
func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// CheckRow classifies a row: valid (no NaN), marker (all NaN) or corrupt.
func CheckRow(row []float64) (marker bool, err error) {
	if IsMarker(row) {
		return true, nil
	}
	if hasNaN(row) {
		return false, types.ErrCorruptFrame
	}
	return false, nil
}

// ValidFromMarkers re-derives the validity of each frame from marker rows.
func ValidFromMarkers(id string, rows [][]float64) ([]bool, error) {
	valid := make([]bool, len(rows))
	for i, row := range rows {
		marker, err := CheckRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: video %s frame %d is partially NaN", err, id, i)
		}
		valid[i] = !marker
	}
	return valid, nil
}

// FeaturePath returns the feature file of a video.
func FeaturePath(dir, id string) string {
	return arrayio.FilePath(dir, id)
}

// MaskPath returns the validity-mask file of a video.
func MaskPath(dir, id string) string {
	return arrayio.FilePath(filepath.Join(dir, MaskDir), id)
}

// LoadRows reads the feature matrix of a video.
func LoadRows(dir, id string) ([][]float64, error) {
	rows, err := arrayio.ReadMatrix(FeaturePath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", id, err)
	}
	return rows, nil
}

// LoadMask reads the validity mask of a video.
func LoadMask(dir, id string) ([]bool, error) {
	col, err := arrayio.ReadColumn(MaskPath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("video %s mask: %w", id, err)
	}
	mask := make([]bool, len(col))
	for i, v := range col {
		mask[i] = v != 0
	}
	return mask, nil
}

// Load reads a video's features together with its mask and checks they line up.
func Load(dir, id string) (*Video, error) {
	rows, err := LoadRows(dir, id)
	if err != nil {
		return nil, err
	}
	mask, err := LoadMask(dir, id)
	if err != nil {
		return nil, err
	}
	if len(mask) != len(rows) {
		return nil, fmt.Errorf("%w: video %s has %d frames but %d mask entries", types.ErrDimensionMismatch, id, len(rows), len(mask))
	}
	return &Video{Rows: rows, Valid: mask}, nil
}

// Save writes the feature matrix and the mask of a video. Invalid frames are
// rewritten as marker rows first.
func Save(dir, id string, v *Video) error {
	if len(v.Valid) != len(v.Rows) {
		return fmt.Errorf("%w: video %s has %d frames but %d mask entries", types.ErrDimensionMismatch, id, len(v.Rows), len(v.Valid))
	}
	v.MarkInvalid()
	if err := arrayio.WriteMatrix(FeaturePath(dir, id), v.Rows); err != nil {
		return fmt.Errorf("video %s: %w", id, err)
	}
	mask := make([]float64, len(v.Valid))
	for i, ok := range v.Valid {
		if ok {
			mask[i] = 1
		}
	}
	if err := arrayio.WriteColumn(MaskPath(dir, id), mask); err != nil {
		return fmt.Errorf("video %s mask: %w", id, err)
	}
	return nil
}
