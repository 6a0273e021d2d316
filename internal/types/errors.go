package types

import "errors"

// Every stage aborts the whole run on these; nothing in the pipeline retries.
var (
	ErrMissingFile        = errors.New("missing file")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrEmptyDataset       = errors.New("empty dataset")
	ErrAlignmentViolation = errors.New("score alignment violation")
	ErrCorruptFrame       = errors.New("corrupt frame")
)
