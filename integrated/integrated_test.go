package integrated

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/forwardindex/blobstore"
	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/segment"
	"github.com/hupe1980/forwardindex/terms"
	"github.com/hupe1980/forwardindex/testutil"
)

const field = "contents%word"

// writeSegments writes one segment per entry of segs; each entry lists the
// token streams of its documents.
func writeSegments(t *testing.T, store blobstore.BlobStore, segs ...[][]string) []string {
	t.Helper()
	var names []string
	for i, docs := range segs {
		b, err := segment.NewBuilder([]string{field}, segment.WithTermBlockSize(16))
		require.NoError(t, err)
		for _, doc := range docs {
			_, err := b.AddDocument(map[string]segment.Tokens{field: {Values: doc}})
			require.NoError(t, err)
		}
		name := fmt.Sprintf("segments/%04d.fi", i)
		require.NoError(t, b.Write(context.Background(), store, name))
		names = append(names, name)
	}
	return names
}

func openSet(t *testing.T, segs ...[][]string) *Set {
	t.Helper()
	store := blobstore.NewMemoryStore()
	names := writeSegments(t, store, segs...)
	s, err := Open(context.Background(), store, names)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strs(t *testing.T, x *Index, ids []int32) []string {
	t.Helper()
	d, err := x.Terms()
	require.NoError(t, err)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.Get(int(id))
	}
	return out
}

func TestSameTermSameGlobalID(t *testing.T) {
	s := openSet(t,
		[][]string{{"the", "cat"}},
		[][]string{{"a", "cat", "dog"}},
	)
	g, err := s.Field(field).Global(context.Background())
	require.NoError(t, err)

	f0, err := s.Segment(0).Field(field)
	require.NoError(t, err)
	f1, err := s.Segment(1).Field(field)
	require.NoError(t, err)
	assert.Equal(t, 2, f0.NumTerms())
	assert.Equal(t, 3, f1.NumTerms())

	// Local ids follow byte order: "cat" is 0 in the first segment and 1
	// in the second.
	a, err := g.SegmentIDsToGlobalIDs(0, []int32{0})
	require.NoError(t, err)
	b, err := g.SegmentIDsToGlobalIDs(1, []int32{1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	r := g.Reader()
	assert.Equal(t, 4, r.NumberOfTerms())
	assert.Equal(t, int32(r.IndexOf("cat")), a[0])
	assert.Equal(t, []string{"a", "cat", "dog", "the"}, []string{r.Get(0), r.Get(1), r.Get(2), r.Get(3)})
}

func TestRetrieveTranslatesAcrossSegments(t *testing.T) {
	s := openSet(t,
		[][]string{{"the", "cat", "the"}, {"dog"}},
		nil,
		[][]string{{"a", "cat", "sat"}},
	)
	require.Equal(t, 3, s.NumSegments())
	require.Equal(t, 3, s.NumDocs())
	assert.Equal(t, 2, s.DocBase(1))
	assert.Equal(t, 2, s.DocBase(2))

	x := s.Field(field)

	ids, err := x.Document(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "cat", "the"}, strs(t, x, ids))
	assert.Equal(t, ids[0], ids[2])

	parts, err := x.RetrieveParts(2, []int{1, -1}, []int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, strs(t, x, parts[0]))
	assert.Equal(t, []string{"a"}, strs(t, x, parts[1]))

	catInFirst, err := x.RetrieveParts(0, []int{1}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, catInFirst[0], parts[0])

	length, err := x.DocLength(1)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	_, err = x.DocLength(3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = x.RetrieveParts(0, []int{2}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	set, err := x.IDSet()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), set.GetCardinality())
}

func TestGlobalSortPositions(t *testing.T) {
	s := openSet(t,
		[][]string{{"cat", "Dog", "élan"}},
		[][]string{{"CAT", "dog", "cat"}},
		[][]string{{"Cat", "elan", "co-operate", "cooperate"}},
	)
	g, err := s.Field(field).Global(context.Background())
	require.NoError(t, err)
	r := g.Reader()
	require.Equal(t, 9, r.NumberOfTerms())

	c := collation.Default()
	for _, sens := range []collation.Sensitivity{collation.Sensitive, collation.Insensitive} {
		coll, err := c.Get(sens)
		require.NoError(t, err)
		for a := range r.NumberOfTerms() {
			for b := range r.NumberOfTerms() {
				ta, tb := r.Get(a), r.Get(b)
				pa, pb := r.IDToSortPosition(a, sens), r.IDToSortPosition(b, sens)
				cmp := coll.Compare(ta, tb)
				assert.Equal(t, cmp == 0, pa == pb, "%s: %q vs %q", sens, ta, tb)
				if cmp < 0 {
					assert.Less(t, pa, pb, "%s: %q before %q", sens, ta, tb)
				}
			}
		}
	}

	// Global ids are assigned in sensitive order.
	for id := 1; id < r.NumberOfTerms(); id++ {
		assert.LessOrEqual(t, r.IDToSortPosition(id-1, collation.Sensitive), r.IDToSortPosition(id, collation.Sensitive))
	}

	cats := []int32{int32(r.IndexOf("cat")), int32(r.IndexOf("Cat")), int32(r.IndexOf("CAT"))}
	assert.True(t, r.TermsEqual(cats, collation.Insensitive))
	assert.False(t, r.TermsEqual(cats, collation.Sensitive))
}

func TestSegmentIDsToGlobalIDs(t *testing.T) {
	s := openSet(t, [][]string{{"x", "y"}})
	g, err := s.Field(field).Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.NumSegments())

	ids, err := g.SegmentIDsToGlobalIDs(0, []int32{terms.NoTerm, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int32{terms.NoTerm, 1, 0}, ids)

	_, err = g.SegmentIDsToGlobalIDs(1, []int32{0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = g.SegmentIDsToGlobalIDs(0, []int32{2})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestGapsStayNoTerm(t *testing.T) {
	store := blobstore.NewMemoryStore()
	b, err := segment.NewBuilder([]string{field})
	require.NoError(t, err)
	_, err = b.AddDocument(map[string]segment.Tokens{field: {Values: []string{"a", "b"}, Increments: []int{1, 2}}})
	require.NoError(t, err)
	require.NoError(t, b.Write(context.Background(), store, "s0"))

	s, err := Open(context.Background(), store, []string{"s0"}, WithFields(field))
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.Field(field).Document(0)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, int32(terms.NoTerm), ids[1])
}

func TestMissingFieldIsFatal(t *testing.T) {
	store := blobstore.NewMemoryStore()
	names := writeSegments(t, store, [][]string{{"a"}})

	b, err := segment.NewBuilder([]string{"contents%lemma"})
	require.NoError(t, err)
	_, err = b.AddDocument(map[string]segment.Tokens{"contents%lemma": {Values: []string{"a"}}})
	require.NoError(t, err)
	require.NoError(t, b.Write(context.Background(), store, "other"))

	s, err := Open(context.Background(), store, append(names, "other"))
	require.NoError(t, err)
	defer s.Close()

	err = s.Field(field).Initialize(context.Background())
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Open(context.Background(), store, append(names, "other"), WithFields(field))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestInitializeCancelledThenRetried(t *testing.T) {
	s := openSet(t, [][]string{{"a", "b"}})
	x := s.Field(field)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, x.Initialize(ctx), context.Canceled)

	require.NoError(t, x.Initialize(context.Background()))
	d, err := x.Terms()
	require.NoError(t, err)
	assert.Equal(t, 2, d.NumberOfTerms())
}

func TestReadOnlyAndClose(t *testing.T) {
	s := openSet(t, [][]string{{"a"}})
	x := s.Field(field)
	assert.Same(t, x, s.Field(field))

	_, err := x.AddDocument([]string{"b"}, nil)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, x.DeleteDocument(0), ErrReadOnly)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = x.Document(0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = x.IDSet()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenPrefix(t *testing.T) {
	store := blobstore.NewLocalStore(t.TempDir())
	writeSegments(t, store, [][]string{{"one"}}, [][]string{{"two"}})

	s, err := OpenPrefix(context.Background(), store, "segments/", WithFields(field), WithBlockCacheSize(0))
	require.NoError(t, err)
	defer s.Close()

	x := s.Field(field)
	ids, err := x.Document(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, strs(t, x, ids))

	_, err = Open(context.Background(), store, []string{"segments/missing"})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRandomCorpus(t *testing.T) {
	rng := testutil.NewRNG(42)
	vocab := testutil.Vocabulary(120)

	var segs [][][]string
	var all [][]string
	for range 4 {
		docs := rng.Corpus(vocab, 1+rng.Intn(12), 30)
		segs = append(segs, docs)
		all = append(all, docs...)
	}
	s := openSet(t, segs...)
	x := s.Field(field)
	require.Equal(t, len(all), s.NumDocs())

	for i, doc := range all {
		ids, err := x.Document(i)
		require.NoError(t, err)
		assert.Equal(t, doc, strs(t, x, ids), "doc %d", i)
	}

	g, err := x.Global(context.Background())
	require.NoError(t, err)
	r := g.Reader()

	c := collation.Default()
	for _, sens := range []collation.Sensitivity{collation.Sensitive, collation.Insensitive} {
		coll, err := c.Get(sens)
		require.NoError(t, err)
		for range 500 {
			a, b := rng.Intn(r.NumberOfTerms()), rng.Intn(r.NumberOfTerms())
			ta, tb := r.Get(a), r.Get(b)
			pa, pb := r.IDToSortPosition(a, sens), r.IDToSortPosition(b, sens)
			cmp := coll.Compare(ta, tb)
			assert.Equal(t, cmp == 0, pa == pb, "%s: %q vs %q", sens, ta, tb)
			if cmp < 0 {
				assert.Less(t, pa, pb, "%s: %q before %q", sens, ta, tb)
			}
		}
	}
}
