// Package freelist implements the interval allocator that manages free
// space in an external forward index's token file.
//
// Free space is tracked as gaps, each owned by the table-of-contents slot of
// the deleted document that freed it. Gaps are kept sorted by length for
// best-fit allocation and are merged by offset when they become physically
// adjacent. Slots that own no space any more (because their gap was merged
// into a neighbour, consumed exactly, or released at the end of the file)
// are kept in a separate recycled list so new documents can reuse them.
package freelist

import (
	"cmp"
	"slices"
	"sort"
)

// Gap is a free range of token slots owned by a table-of-contents slot.
type Gap struct {
	Slot   int
	Offset int64
	Length int64
}

// End returns the offset just past the gap.
func (g Gap) End() int64 { return g.Offset + g.Length }

// Allocation is the result of Allocate.
type Allocation struct {
	// Offset is where the caller must write.
	Offset int64
	// Slot is a free table-of-contents slot the caller should reuse, or -1
	// if a new slot must be appended.
	Slot int
	// Append reports whether the range was taken from the end of the file.
	Append bool
}

// Allocator hands out token ranges, preferring the smallest gap that fits.
// It is not safe for concurrent use.
type Allocator struct {
	gaps     []Gap // by length, then offset
	recycled []int // ascending
	end      int64
}

// New returns an allocator for a token file whose data ends at end.
func New(end int64) *Allocator {
	return &Allocator{end: end}
}

// End returns the current end-of-data pointer.
func (a *Allocator) End() int64 { return a.end }

// Restore registers an existing free slot, e.g. one read back from disk.
// Call Compact once all slots are restored.
func (a *Allocator) Restore(slot int, offset, length int64) {
	if length <= 0 {
		a.recycle(slot)
		return
	}
	a.gaps = append(a.gaps, Gap{Slot: slot, Offset: offset, Length: length})
}

// Allocate reserves size token slots.
func (a *Allocator) Allocate(size int64) Allocation {
	if size > 0 {
		i := sort.Search(len(a.gaps), func(i int) bool { return a.gaps[i].Length >= size })
		if i < len(a.gaps) {
			g := a.gaps[i]
			if g.Length == size {
				a.gaps = slices.Delete(a.gaps, i, i+1)
				return Allocation{Offset: g.Offset, Slot: g.Slot}
			}
			a.gaps[i].Offset += size
			a.gaps[i].Length -= size
			a.sortByLength()
			return Allocation{Offset: g.Offset, Slot: a.popRecycled()}
		}
	}

	off := a.end
	a.end += size
	return Allocation{Offset: off, Slot: a.popRecycled(), Append: true}
}

// Free returns the range [offset, offset+length) owned by slot to the
// allocator and merges it with adjacent gaps.
func (a *Allocator) Free(slot int, offset, length int64) {
	a.Restore(slot, offset, length)
	a.Compact()
}

// Compact merges physically adjacent gaps and releases a trailing gap by
// moving the end-of-data pointer back.
func (a *Allocator) Compact() {
	if len(a.gaps) == 0 {
		return
	}

	slices.SortFunc(a.gaps, func(x, y Gap) int { return cmp.Compare(x.Offset, y.Offset) })

	merged := a.gaps[:1]
	for _, g := range a.gaps[1:] {
		last := &merged[len(merged)-1]
		if last.End() == g.Offset {
			// The later gap absorbs the earlier one.
			a.recycle(last.Slot)
			g.Offset = last.Offset
			g.Length += last.Length
			*last = g
			continue
		}
		merged = append(merged, g)
	}
	a.gaps = merged

	if last := a.gaps[len(a.gaps)-1]; last.End() >= a.end {
		a.end = last.Offset
		a.recycle(last.Slot)
		a.gaps = a.gaps[:len(a.gaps)-1]
	}

	a.sortByLength()
}

// Gaps returns a copy of the free gaps ordered by offset.
func (a *Allocator) Gaps() []Gap {
	out := slices.Clone(a.gaps)
	slices.SortFunc(out, func(x, y Gap) int { return cmp.Compare(x.Offset, y.Offset) })
	return out
}

// Recycled returns the slots that are free but own no space.
func (a *Allocator) Recycled() []int {
	return slices.Clone(a.recycled)
}

// FreeSpace returns the total number of token slots held in gaps.
func (a *Allocator) FreeSpace() int64 {
	var n int64
	for _, g := range a.gaps {
		n += g.Length
	}
	return n
}

// FreeBlocks returns the number of gaps.
func (a *Allocator) FreeBlocks() int { return len(a.gaps) }

func (a *Allocator) sortByLength() {
	slices.SortFunc(a.gaps, func(x, y Gap) int {
		if c := cmp.Compare(x.Length, y.Length); c != 0 {
			return c
		}
		return cmp.Compare(x.Offset, y.Offset)
	})
}

func (a *Allocator) recycle(slot int) {
	i, found := slices.BinarySearch(a.recycled, slot)
	if !found {
		a.recycled = slices.Insert(a.recycled, i, slot)
	}
}

func (a *Allocator) popRecycled() int {
	if len(a.recycled) == 0 {
		return -1
	}
	slot := a.recycled[0]
	a.recycled = a.recycled[1:]
	return slot
}
