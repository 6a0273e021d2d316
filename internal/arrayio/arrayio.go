// Package arrayio persists numeric matrices as CBOR multi-dimensional typed
// arrays (RFC 8746): a tag-40 array of [[rows, cols], typed-array].
package arrayio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// Ext is appended to every video ID to form its file name.
const Ext = ".cbor"

const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// FilePath returns <dir>/<id>.cbor.
func FilePath(dir, id string) string {
	return filepath.Join(dir, id+Ext)
}

// WriteMatrix stores rows as a [len(rows) × width] float64 array, creating parent directories.
func WriteMatrix(path string, rows [][]float64) error {
	value, err := encodeMatrix(rows)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeCBOR(path, value)
}

// WriteColumn stores values as a [len(values) × 1] array.
func WriteColumn(path string, values []float64) error {
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	return WriteMatrix(path, rows)
}

// ReadMatrix loads a matrix written by WriteMatrix (or any 1-D / 2-D RFC 8746 array).
// A missing file is reported as types.ErrMissingFile.
func ReadMatrix(path string) ([][]float64, error) {
	var value any
	if err := readCBOR(path, &value); err != nil {
		return nil, err
	}
	rows, err := decodeMatrix(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadColumn loads a [n × 1] array as a flat slice.
func ReadColumn(path string) ([]float64, error) {
	rows, err := ReadMatrix(path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		if len(r) != 1 {
			return nil, fmt.Errorf("%w: %s: expected a single column, got %d", types.ErrDimensionMismatch, path, len(r))
		}
		out[i] = r[0]
	}
	return out, nil
}

// WriteNamed stores several matrices in one file, keyed by name.
func WriteNamed(path string, arrays map[string][][]float64) error {
	encoded := make(map[string]cbor.Tag, len(arrays))
	for name, rows := range arrays {
		tag, err := encodeMatrix(rows)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", path, name, err)
		}
		encoded[name] = tag
	}
	return writeCBOR(path, encoded)
}

// ReadNamed loads a file written by WriteNamed.
func ReadNamed(path string) (map[string][][]float64, error) {
	var raw map[string]any
	if err := readCBOR(path, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][][]float64, len(raw))
	for name, value := range raw {
		rows, err := decodeMatrix(value)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", path, name, err)
		}
		out[name] = rows
	}
	return out, nil
}

func writeCBOR(path string, value any) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readCBOR(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", types.ErrMissingFile, path)
		}
		return err
	}
	if err := cbor.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func encodeMatrix(rows [][]float64) (cbor.Tag, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	buf := make([]byte, 0, len(rows)*cols*8)
	for i, r := range rows {
		if len(r) != cols {
			return cbor.Tag{}, fmt.Errorf("%w: row %d has %d columns, expected %d", types.ErrDimensionMismatch, i, len(r), cols)
		}
		for _, v := range r {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]int{len(rows), cols},
			cbor.Tag{Number: tagFloat64LE, Content: buf},
		},
	}, nil
}

func decodeMatrix(value any) ([][]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return nil, errors.New("expected multidim tag 40")
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}
	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) == 0 || len(dimsRaw) > 2 {
		return nil, errors.New("invalid multidim dimensions")
	}
	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return nil, err
	}
	cols := 1
	if len(dimsRaw) == 2 {
		if cols, err = toInt(dimsRaw[1]); err != nil {
			return nil, err
		}
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, err
	}
	if rows*cols != len(flat) {
		return nil, fmt.Errorf("%w: header says %dx%d, payload holds %d values", types.ErrDimensionMismatch, rows, cols, len(flat))
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}

func decodeTypedArray(value any) ([]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, errors.New("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	case tagFloat32LE:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return out, nil
	case tagFloat64LE:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case uint64:
		return int(n), nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("invalid dimension %T", v)
	}
}
