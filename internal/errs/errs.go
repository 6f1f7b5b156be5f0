// Package errs holds the error values shared by every forward index
// package. The root package re-exports them.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed index.
	ErrClosed = errors.New("forward index closed")

	// ErrInvalidArgument is returned for bad document ids or snippet ranges.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFormat is returned when on-disk data is missing, malformed or of an
	// unsupported version.
	ErrFormat = errors.New("invalid forward index format")

	// ErrReadOnly is returned when a write is attempted on a read-only index.
	ErrReadOnly = errors.New("forward index is read-only")

	// ErrNotSupported is returned for operations a storage strategy does not
	// implement.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNotFound is returned when a named annotation or field does not exist.
	ErrNotFound = errors.New("not found")
)

// IOError wraps a failed file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Wrap returns nil if err is nil and an *IOError otherwise.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
