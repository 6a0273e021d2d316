package features

import "fmt"

// Mode selects how a stage decides which frames of a video are valid.
type Mode string

const (
	// MaskFiltered trusts the companion validity mask in <dir>/validframes.
	MaskFiltered Mode = "mask"
	// ValidOnly re-derives validity from NaN marker rows. Deprecated: kept to
	// read feature directories produced before masks were written.
	ValidOnly Mode = "valid-only"
)

// ParseMode accepts the --mode flag values.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case MaskFiltered, ValidOnly:
		return m, nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q (want %s or %s)", s, MaskFiltered, ValidOnly)
	}
}

// LoadForMode reads a video's rows and derives its validity according to mode.
func LoadForMode(dir, id string, mode Mode) (*Video, error) {
	if mode == ValidOnly {
		rows, err := LoadRows(dir, id)
		if err != nil {
			return nil, err
		}
		valid, err := ValidFromMarkers(id, rows)
		if err != nil {
			return nil, err
		}
		return &Video{Rows: rows, Valid: valid}, nil
	}
	return Load(dir, id)
}

// ValidityForMode returns only the validity of every frame of a video.
// In mask-filtered mode the feature file is not read.
func ValidityForMode(dir, id string, mode Mode) ([]bool, error) {
	if mode == ValidOnly {
		v, err := LoadForMode(dir, id, mode)
		if err != nil {
			return nil, err
		}
		return v.Valid, nil
	}
	return LoadMask(dir, id)
}
