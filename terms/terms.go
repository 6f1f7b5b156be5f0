// Package terms implements the term dictionary of a forward index: the
// bidirectional mapping between term strings and dense integer ids, plus
// the sensitive and insensitive sort position of every id.
//
// A Writer grows the dictionary during ingestion and assigns ids first come,
// first served. A Reader loads a finished dictionary (or one built from
// merged segments) and answers lookups, sort positions and equality tests
// without string comparisons on the hot path.
package terms

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
)

// NoTerm is the id stored where a token position has no value.
const NoTerm = -1

var (
	// ErrFormat is returned when a terms file is malformed.
	ErrFormat = errs.ErrFormat
	// ErrTermTooLarge is returned when a single term does not fit in a block.
	ErrTermTooLarge = errors.New("terms: term larger than block size")
)

// Dictionary is the part of a term dictionary shared by writers and readers.
type Dictionary interface {
	// NumberOfTerms returns the number of distinct ids.
	NumberOfTerms() int
	// Get returns the string for id, or "" if id is NoTerm or out of range.
	Get(id int) string
	// IndexOf returns the id of term. Writers insert missing terms; readers
	// return NoTerm.
	IndexOf(term string) int
}

// Terms is a finished dictionary with sort positions.
type Terms interface {
	Dictionary
	// IndexOfAll adds every id that equals term under s to results.
	IndexOfAll(results *roaring.Bitmap, term string, s collation.Sensitivity) error
	// IDToSortPosition returns the sort position of id under s, or -1.
	IDToSortPosition(id int, s collation.Sensitivity) int
	// TermsEqual reports whether all ids share one sort position under s.
	TermsEqual(ids []int32, s collation.Sensitivity) bool
}

var (
	_ Dictionary = (*Writer)(nil)
	_ Terms      = (*Reader)(nil)
)
