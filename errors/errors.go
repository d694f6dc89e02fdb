// Package errors defines all exported error sentinels for the xisort library.
//
// This is the single source of truth for error values. The top-level xisort
// package returns these sentinels (wrapped where it adds context), so callers
// in other packages can match them with errors.Is.
package errors

import "errors"

// Configuration errors
var (
	ErrZeroMemLimit       = errors.New("xisort: mem limit must be positive in external mode")
	ErrZeroBufferElems    = errors.New("xisort: buffer elems must be positive")
	ErrInvalidInputLength = errors.New("xisort: invalid input length")
)

// I/O errors
var (
	ErrShortRead        = errors.New("xisort: short read before end of file")
	ErrScratchCorrupted = errors.New("xisort: run file checksum mismatch")
	ErrOutputIncomplete = errors.New("xisort: output file incomplete")
)

// Internal errors (invariant violations; indicate a bug)
var (
	ErrInternal = errors.New("xisort: internal invariant violation")
)
