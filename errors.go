package forwardindex

import (
	"context"
	"errors"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed index.
	ErrClosed = errs.ErrClosed

	// ErrInvalidArgument is returned for bad fiids, snippet ranges or
	// document contents.
	ErrInvalidArgument = errs.ErrInvalidArgument

	// ErrFormat is returned when on-disk data is missing or malformed.
	ErrFormat = errs.ErrFormat

	// ErrReadOnly is returned when a write reaches a read-only index.
	ErrReadOnly = errs.ErrReadOnly

	// ErrNotSupported is returned for operations a strategy does not offer.
	ErrNotSupported = errs.ErrNotSupported

	// ErrNotFound is returned for an unknown annotation.
	ErrNotFound = errs.ErrNotFound

	// ErrUnsupportedConfiguration is returned for a sensitivity whose case
	// and diacritics settings differ.
	ErrUnsupportedConfiguration = collation.ErrUnsupportedConfiguration
)

// IOError wraps a failed file operation. errors.Is sees through it, so
// errors.Is(err, fs.ErrNotExist) still works.
type IOError = errs.IOError

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
