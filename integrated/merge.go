package integrated

import (
	"bytes"
	"container/heap"
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/segment"
	"github.com/hupe1980/forwardindex/terms"
)

// Terms is the global term space of one field across a set of segments.
// It is immutable and safe for concurrent use.
type Terms struct {
	reader *terms.Reader
	global [][]int32 // per segment: local id -> global id
}

// Reader returns the global dictionary with its sort positions.
func (t *Terms) Reader() *terms.Reader { return t.reader }

// NumSegments returns the number of segments merged.
func (t *Terms) NumSegments() int { return len(t.global) }

// SegmentIDsToGlobalIDs translates local term ids of segment seg in place
// and returns ids. Negative ids such as terms.NoTerm are left untouched.
func (t *Terms) SegmentIDsToGlobalIDs(seg int, ids []int32) ([]int32, error) {
	if seg < 0 || seg >= len(t.global) {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrInvalidArgument, seg, len(t.global))
	}
	m := t.global[seg]
	for i, id := range ids {
		if id < 0 {
			continue
		}
		if int(id) >= len(m) {
			return nil, fmt.Errorf("%w: segment %d has no term %d", ErrFormat, seg, id)
		}
		ids[i] = m[id]
	}
	return ids, nil
}

// cursor is the head of one segment iterator in the merge.
type cursor struct {
	seg int
	it  *segment.TermIterator
	key []byte
}

type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	if c := strings.Compare(h[i].it.Term(), h[j].it.Term()); c != 0 {
		return c < 0
	}
	return h[i].seg < h[j].seg
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// checkEvery is how many merged terms pass between context checks.
const checkEvery = 4096

// walk merges the iterators of fields in the order of s and calls fn for
// every term with the segment it came from. Terms arrive sorted by
// collation key, ties broken by string and then by segment.
func walk(ctx context.Context, fields []*segment.Field, coll *collation.Collator, s collation.Sensitivity, fn func(seg, id int, term string, key []byte)) error {
	h := make(mergeHeap, 0, len(fields))
	for seg, f := range fields {
		it, err := f.Iterator(s)
		if err != nil {
			return err
		}
		if it.Next() {
			h = append(h, &cursor{seg: seg, it: it, key: coll.Key(it.Term())})
		} else if err := it.Err(); err != nil {
			return err
		}
	}
	heap.Init(&h)

	for n := 0; h.Len() > 0; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		c := h[0]
		fn(c.seg, c.it.ID(), c.it.Term(), c.key)

		if c.it.Next() {
			c.key = coll.Key(c.it.Term())
			heap.Fix(&h, 0)
			continue
		}
		if err := c.it.Err(); err != nil {
			return err
		}
		heap.Pop(&h)
	}
	return nil
}

// Merge builds the global term space of one field. fields holds the field
// of every segment, in segment order.
//
// Global ids are assigned in the order terms are first met in a sensitive
// merge of all segments, so they are sorted by sensitive collation. A
// second, insensitive merge assigns the insensitive sort positions. In
// both orders terms that compare equal share a position.
func Merge(ctx context.Context, c *collation.Collators, fields []*segment.Field) (*Terms, error) {
	if c == nil {
		c = collation.Default()
	}

	global := make([][]int32, len(fields))
	for seg, f := range fields {
		global[seg] = make([]int32, f.NumTerms())
	}

	var (
		strs    []string
		sensPos []int32
		ids     = make(map[string]int32)
		prev    []byte
		pos     int32 = -1
	)
	err := walk(ctx, fields, c.Sensitive(), collation.Sensitive, func(seg, local int, term string, key []byte) {
		id, ok := ids[term]
		if !ok {
			if pos < 0 || !bytes.Equal(key, prev) {
				pos++
				prev = key
			}
			id = int32(len(strs))
			ids[term] = id
			strs = append(strs, term)
			sensPos = append(sensPos, pos)
		}
		global[seg][local] = id
	})
	if err != nil {
		return nil, err
	}

	insPos := make([]int32, len(strs))
	done := make([]bool, len(strs))
	prev, pos = nil, -1
	err = walk(ctx, fields, c.Insensitive(), collation.Insensitive, func(seg, local int, _ string, key []byte) {
		id := global[seg][local]
		if done[id] {
			return
		}
		if pos < 0 || !bytes.Equal(key, prev) {
			pos++
			prev = key
		}
		insPos[id] = pos
		done[id] = true
	})
	if err != nil {
		return nil, err
	}

	r, err := terms.NewReader(c, &terms.File{
		Terms:                strs,
		SensitivePositions:   sensPos,
		InsensitivePositions: insPos,
	})
	if err != nil {
		return nil, err
	}
	return &Terms{reader: r, global: global}, nil
}
