package external

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/fs"
	"github.com/hupe1980/forwardindex/terms"
	"github.com/hupe1980/forwardindex/testutil"
)

func strs(t *testing.T, d terms.Dictionary, ids []int32) []string {
	t.Helper()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.Get(int(id))
	}
	return out
}

func createIndex(t *testing.T, docs [][]string, opts ...Option) (string, []int) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "word")

	w, err := Create(dir, opts...)
	require.NoError(t, err)

	fiids := make([]int, len(docs))
	for i, doc := range docs {
		fiids[i], err = w.AddDocument(doc, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return dir, fiids
}

func TestRoundTrip(t *testing.T) {
	docs := [][]string{
		{"the", "quick", "brown", "fox", ""},
		{"the", "lazy", "dog", ""},
		{"The", "Dog", ""},
	}
	dir, fiids := createIndex(t, docs, WithWriteReserve(3))

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	d, err := r.Terms()
	require.NoError(t, err)

	for i, doc := range docs {
		ids, err := r.Document(fiids[i])
		require.NoError(t, err)
		assert.Equal(t, doc, strs(t, d, ids))

		length, err := r.DocLength(fiids[i])
		require.NoError(t, err)
		assert.Equal(t, len(doc), length)
	}

	var seen []int
	require.NoError(t, r.ForEachDocument(func(fiid int, ids []int32) error {
		seen = append(seen, fiid)
		assert.Equal(t, docs[fiid], strs(t, d, ids))
		return nil
	}))
	assert.Equal(t, fiids, seen)
}

func TestSnippetExample(t *testing.T) {
	dir, fiids := createIndex(t, [][]string{{"the", "cat", "the"}})

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	length, err := r.DocLength(fiids[0])
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	d, err := r.Terms()
	require.NoError(t, err)

	parts, err := r.RetrieveParts(fiids[0], []int{1}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{int32(d.IndexOf("cat"))}}, parts)

	ids, err := r.Document(fiids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], ids[2])

	full, err := r.RetrieveParts(fiids[0], []int{0}, []int{length})
	require.NoError(t, err)
	assert.Len(t, full[0], length)

	tok, err := r.GetToken(fiids[0], 1)
	require.NoError(t, err)
	assert.Equal(t, d.IndexOf("cat"), tok)
}

func TestSnippetArguments(t *testing.T) {
	dir, fiids := createIndex(t, [][]string{{"a", "b", "c", "d"}})

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	fiid := fiids[0]

	parts, err := r.RetrieveParts(fiid, []int{2, -1}, []int{100, 1})
	require.NoError(t, err)
	assert.Len(t, parts[0], 2, "end is clamped to the document length")
	assert.Len(t, parts[1], 1)

	tests := []struct {
		name         string
		starts, ends []int
	}{
		{"start after end", []int{3}, []int{2}},
		{"empty range", []int{2}, []int{2}},
		{"negative start", []int{-2}, []int{2}},
		{"start beyond length", []int{5}, []int{-1}},
		{"mismatched arrays", []int{0, 1}, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RetrieveParts(fiid, tt.starts, tt.ends)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	_, err = r.RetrieveParts(7, []int{0}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.GetToken(fiid, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPositionIncrements(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lemma")
	w, err := Create(dir)
	require.NoError(t, err)

	fiid, err := w.AddDocument([]string{"a", "b", "c"}, []int{1, 0, 3})
	require.NoError(t, err)

	length, err := w.DocLength(fiid)
	require.NoError(t, err)
	assert.Equal(t, 4, length)

	d, err := w.Terms()
	require.NoError(t, err)
	ids, err := w.Document(fiid)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "", "c"}, strs(t, d, ids))

	_, err = w.AddDocument([]string{"a"}, []int{1, 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = w.AddDocument([]string{"a"}, []int{-1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, w.Close())
}

func TestDeleteAndReuseExactFit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "word")
	w, err := Create(dir, WithWriteReserve(0))
	require.NoError(t, err)

	a, err := w.AddDocument([]string{"one", "two", "three"}, nil)
	require.NoError(t, err)
	b, err := w.AddDocument([]string{"four", "five"}, nil)
	require.NoError(t, err)
	c, err := w.AddDocument([]string{"six", "seven", "eight"}, nil)
	require.NoError(t, err)

	require.NoError(t, w.DeleteDocument(b))
	require.NoError(t, w.DeleteDocument(b), "deleting twice is harmless")

	parts, err := w.RetrieveParts(b, []int{-1}, []int{-1})
	require.NoError(t, err)
	assert.Nil(t, parts)

	reused, err := w.AddDocument([]string{"nine", "ten"}, nil)
	require.NoError(t, err)
	assert.Equal(t, b, reused)

	d, err := w.Terms()
	require.NoError(t, err)
	for fiid, want := range map[int][]string{
		a:      {"one", "two", "three"},
		reused: {"nine", "ten"},
		c:      {"six", "seven", "eight"},
	} {
		ids, err := w.Document(fiid)
		require.NoError(t, err)
		assert.Equal(t, want, strs(t, d, ids))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()
	ids, err := r.Document(reused)
	require.NoError(t, err)
	rd, err := r.Terms()
	require.NoError(t, err)
	assert.Equal(t, []string{"nine", "ten"}, strs(t, rd, ids))
}

func TestAdjacentDeletesMergeAndShrinkFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "word")
	w, err := Create(dir, WithWriteReserve(100))
	require.NoError(t, err)

	keep, err := w.AddDocument([]string{"a", "b"}, nil)
	require.NoError(t, err)
	x, err := w.AddDocument([]string{"c", "d", "e"}, nil)
	require.NoError(t, err)
	y, err := w.AddDocument([]string{"f", "g", "h", "i"}, nil)
	require.NoError(t, err)
	z, err := w.AddDocument([]string{"j"}, nil)
	require.NoError(t, err)

	require.NoError(t, w.DeleteDocument(x))
	require.NoError(t, w.DeleteDocument(y))

	st, err := w.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.FreeBlocks)
	assert.Equal(t, int64(7), st.FreeSpace, "merged gap is the sum of both documents")
	assert.Equal(t, int64(10), st.TotalSize)

	require.NoError(t, w.DeleteDocument(z))
	st, err = w.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.FreeBlocks)
	assert.Equal(t, int64(2), st.TotalSize, "trailing gap moves the end pointer back")
	assert.Equal(t, 3, st.DeletedDocuments)

	require.NoError(t, w.Close())

	fi, err := os.Stat(filepath.Join(dir, tokensFile))
	require.NoError(t, err)
	assert.Equal(t, int64(2*sizeofInt), fi.Size())

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	live, err := r.IDSet()
	require.NoError(t, err)
	assert.Equal(t, []uint32{uint32(keep)}, live.ToArray())
}

func TestReopenWriterAppends(t *testing.T) {
	dir, fiids := createIndex(t, [][]string{{"x", "y"}, {"y", "z"}})

	w, err := OpenWriter(dir)
	require.NoError(t, err)
	d, err := w.Terms()
	require.NoError(t, err)
	yID := d.IndexOf("y")

	next, err := w.AddDocument([]string{"y", "new"}, nil)
	require.NoError(t, err)
	assert.Equal(t, len(fiids), next)
	require.NoError(t, w.Close())

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	ids, err := r.Document(next)
	require.NoError(t, err)
	assert.Equal(t, int32(yID), ids[0])

	ids, err = r.Document(fiids[1])
	require.NoError(t, err)
	assert.Equal(t, int32(yID), ids[0])
}

func TestSmallChunks(t *testing.T) {
	var docs [][]string
	for i := range 40 {
		doc := make([]string, 1+i%7)
		for j := range doc {
			doc[j] = string(rune('a' + (i+j)%26))
		}
		docs = append(docs, doc)
	}
	dir, fiids := createIndex(t, docs, WithWriteReserve(1))

	r, err := OpenReader(dir, WithChunkSize(32))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Initialize(context.Background()))
	assert.Greater(t, len(r.state.chunks), 1)

	d, err := r.Terms()
	require.NoError(t, err)
	for i, doc := range docs {
		ids, err := r.Document(fiids[i])
		require.NoError(t, err)
		assert.Equal(t, doc, strs(t, d, ids))
	}
}

func TestDocumentLargerThanChunk(t *testing.T) {
	dir, _ := createIndex(t, [][]string{{"a"}, {"a", "b", "c", "d", "e", "f", "g", "h", "i"}})

	r, err := OpenReader(dir, WithChunkSize(16))
	require.NoError(t, err)
	defer r.Close()

	assert.ErrorIs(t, r.Initialize(context.Background()), ErrFormat)
}

func TestChunkBoundaryInsideGap(t *testing.T) {
	docs := [][]string{
		{"a", "b", ""},
		{"c", "d", "e", "f", "g", "h", ""},
		{"i", ""},
	}
	dir := filepath.Join(t.TempDir(), "word")
	w, err := Create(dir)
	require.NoError(t, err)
	fiids := make([]int, len(docs))
	for i, doc := range docs {
		fiids[i], err = w.AddDocument(doc, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.DeleteDocument(fiids[1]))
	require.NoError(t, w.Close())

	// Five ints per chunk: the first chunk ends inside the freed gap.
	r, err := OpenReader(dir, WithChunkSize(5*sizeofInt))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Initialize(context.Background()))
	assert.Len(t, r.state.chunks, 2)

	d, err := r.Terms()
	require.NoError(t, err)
	for _, i := range []int{0, 2} {
		ids, err := r.Document(fiids[i])
		require.NoError(t, err)
		assert.Equal(t, docs[i], strs(t, d, ids))
	}

	ids, err := r.Document(fiids[1])
	require.NoError(t, err)
	assert.Nil(t, ids)
	length, err := r.DocLength(fiids[1])
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestEmptyDocumentSurvivesTrailingDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "word")
	w, err := Create(dir)
	require.NoError(t, err)

	a, err := w.AddDocument([]string{"x", "y", ""}, nil)
	require.NoError(t, err)
	empty, err := w.AddDocument(nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.DeleteDocument(a))

	length, err := w.DocLength(a)
	require.NoError(t, err)
	assert.Zero(t, length, "deleted documents have no length")
	require.NoError(t, w.Close())

	r, err := OpenReader(dir)
	require.NoError(t, err)
	ids, err := r.Document(empty)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
	st, err := r.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.TotalSize)
	require.NoError(t, r.Close())

	w, err = OpenWriter(dir)
	require.NoError(t, err)
	b, err := w.AddDocument([]string{"z", ""}, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b, "the freed slot is reused")
	st, err = w.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalSize)
	require.NoError(t, w.Close())
}

func TestVersionMarker(t *testing.T) {
	dir, _ := createIndex(t, [][]string{{"co-operate", ""}})
	marker := filepath.Join(dir, versionFile)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "fi||5", string(data))

	require.NoError(t, os.WriteFile(marker, []byte("fi||4"), 0o644))
	r, err := OpenReader(dir)
	require.NoError(t, err)
	assert.Equal(t, collation.V1, r.Collators().Version())
	require.NoError(t, r.Close())

	_, err = OpenWriter(dir)
	assert.ErrorIs(t, err, ErrReadOnly)

	for _, bad := range []string{"fi||3", "fi||2", "fi||9", "cs||5", "garbage"} {
		require.NoError(t, os.WriteFile(marker, []byte(bad), 0o644))
		_, err = OpenReader(dir)
		assert.ErrorIs(t, err, ErrFormat, bad)
	}

	require.NoError(t, os.Remove(marker))
	_, err = OpenReader(dir)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestMissingFiles(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrFormat)

	dir, _ := createIndex(t, [][]string{{"a"}})
	require.NoError(t, os.Remove(filepath.Join(dir, tocFile)))
	_, err = OpenReader(dir)
	assert.ErrorIs(t, err, ErrFormat)
	_, err = OpenWriter(dir)
	assert.ErrorIs(t, err, ErrFormat)

	dir, _ = createIndex(t, [][]string{{"a"}})
	require.NoError(t, os.Remove(filepath.Join(dir, termsFile)))
	r, err := OpenReader(dir)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Initialize(context.Background()), ErrFormat)
}

func TestEmptyIndex(t *testing.T) {
	dir, _ := createIndex(t, nil)

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	st, err := r.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Documents)

	d, err := r.Terms()
	require.NoError(t, err)
	assert.Zero(t, d.NumberOfTerms())
}

func TestInitializeCancelledThenRetried(t *testing.T) {
	dir, fiids := createIndex(t, [][]string{{"a", "b"}})

	r, err := OpenReader(dir)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Initialize(ctx), context.Canceled)

	length, err := r.DocLength(fiids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, length)
}

func TestClosed(t *testing.T) {
	dir, _ := createIndex(t, [][]string{{"a"}})

	r, err := OpenReader(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Document(0)
	assert.ErrorIs(t, err, ErrClosed)

	w, err := OpenWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.AddDocument([]string{"b"}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriteFailureIsWrapped(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(tokensFile, fs.Fault{FailAfterBytes: sizeofInt})
	dir := filepath.Join(t.TempDir(), "word")

	w, err := Create(dir, WithFileSystem(ffs))
	require.NoError(t, err)

	ok, err := w.AddDocument([]string{"fine"}, nil)
	require.NoError(t, err)

	_, err = w.AddDocument([]string{"too", "much"}, nil)
	var ioErr *errs.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, fs.ErrInjected)

	live, err := w.IDSet()
	require.NoError(t, err)
	assert.Equal(t, []uint32{uint32(ok)}, live.ToArray())

	st, err := w.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalSize, "failed append gives its space back")

	require.NoError(t, w.Close())
}

func TestRandomAddDelete(t *testing.T) {
	rng := testutil.NewRNG(7)
	vocab := testutil.Vocabulary(80)
	dir := filepath.Join(t.TempDir(), "word")

	w, err := Create(dir, WithWriteReserve(16))
	require.NoError(t, err)

	want := make(map[int][]string)
	for range 300 {
		if len(want) > 0 && rng.Intn(3) == 0 {
			for fiid := range want {
				require.NoError(t, w.DeleteDocument(fiid))
				delete(want, fiid)
				break
			}
			continue
		}
		doc := rng.Document(vocab, 30)
		incs := rng.Increments(len(doc))
		fiid, err := w.AddDocument(doc, incs)
		require.NoError(t, err)
		require.NotContains(t, want, fiid)
		want[fiid] = testutil.Expand(doc, incs, "")
	}

	check := func(idx interface {
		Document(int) ([]int32, error)
		Terms() (terms.Dictionary, error)
		IDSet() (*roaring.Bitmap, error)
	}) {
		d, err := idx.Terms()
		require.NoError(t, err)
		live, err := idx.IDSet()
		require.NoError(t, err)
		assert.Equal(t, uint64(len(want)), live.GetCardinality())
		for fiid, doc := range want {
			assert.True(t, live.Contains(uint32(fiid)))
			ids, err := idx.Document(fiid)
			require.NoError(t, err)
			assert.Equal(t, doc, strs(t, d, ids), "fiid %d", fiid)
		}
	}
	check(w)
	require.NoError(t, w.Close())

	r, err := OpenReader(dir, WithChunkSize(1024))
	require.NoError(t, err)
	defer r.Close()
	check(r)
}
