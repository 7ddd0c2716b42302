package modfile

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput is reported when a fixed-offset read
	// falls outside of the input buffer.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrCorruptHeader is reported when offsets derived from the header
	// (pattern count, sample lengths) point past the end of the input.
	ErrCorruptHeader = errors.New("corrupt header")
)

type ParseError struct {
	Message string

	Offset int

	// Err is either ErrTruncatedInput or ErrCorruptHeader.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (offset=%d)", e.Message, e.Offset)
}

func (e *ParseError) Unwrap() error { return e.Err }
