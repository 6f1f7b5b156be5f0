package terms

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/armon/go-radix"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/mmap"
)

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	trie bool
}

// WithoutTrie skips building the exact-match trie. Lookups then always
// binary search by collation, and prefix scans are linear.
func WithoutTrie() ReaderOption {
	return func(o *readerOptions) { o.trie = false }
}

const (
	sensitiveIdx   = 0
	insensitiveIdx = 1
)

// Reader is an immutable term dictionary. It is safe for concurrent use.
//
// Ids sharing a sort position form a group. Groups are stored flat as
// [size, id, id, ...] runs in one slice; byPos lists the offset of every
// group in ascending position order so lookups can binary search by
// comparing against one representative term per probe.
type Reader struct {
	collators *collation.Collators
	terms     []string
	positions [2][]int32 // id -> sort position
	groups    []int32
	groupOf   [2][]int32 // id -> group offset
	byPos     [2][]int32 // group offsets by ascending position
	trie      *radix.Tree
}

// Open loads the terms file at path.
func Open(path string, c *collation.Collators, optFns ...ReaderOption) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	_ = m.Advise(mmap.AccessSequential)

	f, err := Decode(m.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewReader(c, f, optFns...)
}

// NewReader builds a reader from decoded terms and sort positions.
func NewReader(c *collation.Collators, f *File, optFns ...ReaderOption) (*Reader, error) {
	opts := readerOptions{trie: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	n := len(f.Terms)
	if len(f.SensitivePositions) != n || len(f.InsensitivePositions) != n {
		return nil, fmt.Errorf("%w: %d terms but %d/%d sort positions",
			ErrFormat, n, len(f.SensitivePositions), len(f.InsensitivePositions))
	}

	r := &Reader{
		collators: c,
		terms:     f.Terms,
		positions: [2][]int32{f.SensitivePositions, f.InsensitivePositions},
		groups:    make([]int32, 0, 2*n),
	}
	for k := range r.positions {
		for id, p := range r.positions[k] {
			if p < 0 || int(p) >= n {
				return nil, fmt.Errorf("%w: term %d has sort position %d", ErrFormat, id, p)
			}
		}
		r.buildGroups(k)
	}

	if opts.trie {
		r.trie = radix.New()
		for id, t := range r.terms {
			if _, ok := r.trie.Get(t); !ok {
				r.trie.Insert(t, id)
			}
		}
	}

	return r, nil
}

func (r *Reader) buildGroups(k int) {
	n := len(r.terms)
	pos := r.positions[k]

	order := make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(a, b int32) int {
		if c := cmp.Compare(pos[a], pos[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	r.groupOf[k] = make([]int32, n)
	for start := 0; start < n; {
		end := start + 1
		for end < n && pos[order[end]] == pos[order[start]] {
			end++
		}
		run := order[start:end]

		var off int32
		if k == insensitiveIdx && len(run) == 1 && r.groups[r.groupOf[sensitiveIdx][run[0]]] == 1 {
			off = r.groupOf[sensitiveIdx][run[0]]
		} else {
			off = int32(len(r.groups))
			r.groups = append(r.groups, int32(len(run)))
			r.groups = append(r.groups, run...)
		}
		for _, id := range run {
			r.groupOf[k][id] = off
		}
		r.byPos[k] = append(r.byPos[k], off)
		start = end
	}
}

func sensitivityIndex(s collation.Sensitivity) (int, error) {
	switch s {
	case collation.Sensitive:
		return sensitiveIdx, nil
	case collation.Insensitive:
		return insensitiveIdx, nil
	default:
		return 0, fmt.Errorf("%w: %s", collation.ErrUnsupportedConfiguration, s)
	}
}

// Collators returns the collators the reader compares with.
func (r *Reader) Collators() *collation.Collators { return r.collators }

// NumberOfTerms returns the number of ids.
func (r *Reader) NumberOfTerms() int { return len(r.terms) }

// Get returns the term with the given id, or "" for NoTerm and ids out of
// range.
func (r *Reader) Get(id int) string {
	if id < 0 || id >= len(r.terms) {
		return ""
	}
	return r.terms[id]
}

func (r *Reader) group(off int32) []int32 {
	size := r.groups[off]
	return r.groups[off+1 : off+1+size]
}

// find binary searches the groups of k for term.
func (r *Reader) find(term string, k int) ([]int32, bool) {
	coll := r.collators.Sensitive()
	if k == insensitiveIdx {
		coll = r.collators.Insensitive()
	}

	byPos := r.byPos[k]
	i := sort.Search(len(byPos), func(i int) bool {
		return coll.Compare(r.terms[r.group(byPos[i])[0]], term) >= 0
	})
	if i == len(byPos) {
		return nil, false
	}
	g := r.group(byPos[i])
	if coll.Compare(r.terms[g[0]], term) != 0 {
		return nil, false
	}
	return g, true
}

// IndexOf returns the id of term under sensitive comparison, or NoTerm.
func (r *Reader) IndexOf(term string) int {
	if r.trie != nil {
		if v, ok := r.trie.Get(term); ok {
			return v.(int)
		}
	}
	g, ok := r.find(term, sensitiveIdx)
	if !ok {
		return NoTerm
	}
	return int(g[0])
}

// IndexOfAll adds every id equal to term under s to results. For
// insensitive lookups that may be several distinct strings.
func (r *Reader) IndexOfAll(results *roaring.Bitmap, term string, s collation.Sensitivity) error {
	k, err := sensitivityIndex(s)
	if err != nil {
		return err
	}
	g, ok := r.find(term, k)
	if !ok {
		return nil
	}
	for _, id := range g {
		results.Add(uint32(id))
	}
	return nil
}

// IDToSortPosition returns the sort position of id under s, or -1 if id is
// invalid or s is not supported.
func (r *Reader) IDToSortPosition(id int, s collation.Sensitivity) int {
	k, err := sensitivityIndex(s)
	if err != nil || id < 0 || id >= len(r.terms) {
		return -1
	}
	return int(r.positions[k][id])
}

// TermsEqual reports whether every id has the same sort position under s.
func (r *Reader) TermsEqual(ids []int32, s collation.Sensitivity) bool {
	if len(ids) < 2 {
		return true
	}
	first := r.IDToSortPosition(int(ids[0]), s)
	for _, id := range ids[1:] {
		if r.IDToSortPosition(int(id), s) != first {
			return false
		}
	}
	return true
}

// IDsAtSortPosition returns the ids that share sort position pos under s.
func (r *Reader) IDsAtSortPosition(pos int, s collation.Sensitivity) []int32 {
	k, err := sensitivityIndex(s)
	if err != nil {
		return nil
	}
	byPos := r.byPos[k]
	i := sort.Search(len(byPos), func(i int) bool {
		return int(r.positions[k][r.group(byPos[i])[0]]) >= pos
	})
	if i == len(byPos) {
		return nil
	}
	g := r.group(byPos[i])
	if int(r.positions[k][g[0]]) != pos {
		return nil
	}
	return slices.Clone(g)
}

// IDsWithPrefix returns the ids of all terms that start with prefix,
// compared bytewise, in ascending id order.
func (r *Reader) IDsWithPrefix(prefix string) []int32 {
	var ids []int32
	if r.trie != nil {
		r.trie.WalkPrefix(prefix, func(_ string, v interface{}) bool {
			ids = append(ids, int32(v.(int)))
			return false
		})
		slices.Sort(ids)
		return ids
	}
	for id, t := range r.terms {
		if strings.HasPrefix(t, prefix) {
			ids = append(ids, int32(id))
		}
	}
	return ids
}

// SortedIDs returns all ids ordered by sort position under s; ids sharing
// a position are in ascending id order.
func (r *Reader) SortedIDs(s collation.Sensitivity) ([]int32, error) {
	k, err := sensitivityIndex(s)
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, len(r.terms))
	for _, off := range r.byPos[k] {
		out = append(out, r.group(off)...)
	}
	return out, nil
}
