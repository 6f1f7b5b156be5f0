package segment

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hupe1980/forwardindex/collation"
)

// TermIterator walks the terms of a field in collation order. Term blocks
// are decompressed when the walk first reaches one of their terms.
//
//	it, _ := f.Iterator(collation.Sensitive)
//	for it.Next() {
//	    use(it.ID(), it.Term(), it.SortPosition())
//	}
//	err := it.Err()
type TermIterator struct {
	f      *Field
	order  []byte
	pos    []byte
	blocks [][]byte
	i      int

	id      int
	term    string
	sortPos int
	err     error
}

// Iterator returns an iterator over the terms of f in the order of s,
// which must be Sensitive or Insensitive.
func (f *Field) Iterator(s collation.Sensitivity) (*TermIterator, error) {
	if f.r.closed.Load() {
		return nil, ErrClosed
	}
	it := &TermIterator{f: f, blocks: make([][]byte, len(f.blocks)), i: -1}
	switch s {
	case collation.Sensitive:
		it.order, it.pos = f.sensOrder, f.sensPos
	case collation.Insensitive:
		it.order, it.pos = f.insOrder, f.insPos
	default:
		return nil, fmt.Errorf("%w: %s", collation.ErrUnsupportedConfiguration, s)
	}
	return it, nil
}

// Next advances to the next term. It returns false at the end or on error.
func (it *TermIterator) Next() bool {
	if it.err != nil || it.i+1 >= it.f.numTerms {
		return false
	}
	it.i++

	id := int(binary.LittleEndian.Uint32(it.order[4*it.i:]))
	b := sort.Search(len(it.f.blocks), func(i int) bool { return int(it.f.blocks[i].first) > id }) - 1
	if it.blocks[b] == nil {
		block, err := it.f.block(b)
		if err != nil {
			it.err = err
			return false
		}
		it.blocks[b] = block
	}
	term, err := termInBlock(it.blocks[b], id-int(it.f.blocks[b].first))
	if err != nil {
		it.err = err
		return false
	}

	it.id = id
	it.term = term
	it.sortPos = int(binary.LittleEndian.Uint32(it.pos[4*id:]))
	return true
}

// ID returns the local id of the current term.
func (it *TermIterator) ID() int { return it.id }

// Term returns the current term.
func (it *TermIterator) Term() string { return it.term }

// SortPosition returns the local sort position of the current term.
func (it *TermIterator) SortPosition() int { return it.sortPos }

// Err returns the error that stopped the iteration, if any.
func (it *TermIterator) Err() error { return it.err }
