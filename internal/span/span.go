// Package span validates token range requests against document lengths.
package span

import (
	"fmt"

	"github.com/hupe1980/forwardindex/internal/errs"
)

// Resolve resolves one (start, end) request against a document of the
// given length. -1 means the document start or end. An end beyond the
// document is clamped because callers building windows may not know the
// length yet. The whole of an empty document is the empty range.
func Resolve(length, start, end int) (int, int, error) {
	if start == -1 {
		start = 0
	}
	if end == -1 || end > length {
		end = length
	}
	if length == 0 && start == 0 && end == 0 {
		return 0, 0, nil
	}
	if start < 0 || end < 0 || start > length || end <= start {
		return 0, 0, fmt.Errorf("%w: snippet [%d, %d) of document with length %d", errs.ErrInvalidArgument, start, end, length)
	}
	return start, end, nil
}

// CheckPairs checks that every start has an end.
func CheckPairs(starts, ends []int) error {
	if len(starts) != len(ends) {
		return fmt.Errorf("%w: %d starts but %d ends", errs.ErrInvalidArgument, len(starts), len(ends))
	}
	return nil
}

// CheckID checks that id addresses one of n documents.
func CheckID(id, n int) error {
	if id < 0 || id >= n {
		return fmt.Errorf("%w: document %d out of range [0, %d)", errs.ErrInvalidArgument, id, n)
	}
	return nil
}
