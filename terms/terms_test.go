package terms

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/fs"
)

var words = []string{"the", "cat", "The", "Cat", "café", "cafe", "dog", "", "co-operate", "cooperate", "CAT"}

func newWriter(t *testing.T, opts ...WriterOption) *Writer {
	t.Helper()
	w := NewWriter(collation.Default(), opts...)
	for _, word := range words {
		w.IndexOf(word)
	}
	return w
}

func TestWriterAssignsIdsFirstComeFirstServed(t *testing.T) {
	w := NewWriter(collation.Default())

	assert.Equal(t, 0, w.IndexOf("the"))
	assert.Equal(t, 1, w.IndexOf("cat"))
	assert.Equal(t, 0, w.IndexOf("the"))
	assert.Equal(t, 2, w.IndexOf("The"))
	assert.Equal(t, 3, w.NumberOfTerms())

	assert.Equal(t, "cat", w.Get(1))
	assert.Equal(t, "", w.Get(NoTerm))
	assert.Equal(t, "", w.Get(99))
}

func TestSortPositionsMatchCollation(t *testing.T) {
	c := collation.Default()
	w := newWriter(t)

	r, err := w.Reader()
	require.NoError(t, err)

	for _, s := range []collation.Sensitivity{collation.Sensitive, collation.Insensitive} {
		coll, err := c.Get(s)
		require.NoError(t, err)

		for _, a := range words {
			for _, b := range words {
				pa := r.IDToSortPosition(w.IndexOf(a), s)
				pb := r.IDToSortPosition(w.IndexOf(b), s)
				cmp := coll.Compare(a, b)

				assert.Equal(t, cmp == 0, pa == pb, "%s: %q vs %q", s, a, b)
				if cmp < 0 {
					assert.Less(t, pa, pb, "%s: %q < %q", s, a, b)
				}
			}
		}
	}
}

func TestSensitivePositionsAreDense(t *testing.T) {
	f := newWriter(t).Build()

	seen := make(map[int32]bool)
	for _, p := range f.SensitivePositions {
		seen[p] = true
	}
	assert.Len(t, seen, len(words))
}

func TestInsensitiveLookupReturnsAllVariants(t *testing.T) {
	w := newWriter(t)
	r, err := w.Reader()
	require.NoError(t, err)

	results := roaring.New()
	require.NoError(t, r.IndexOfAll(results, "cat", collation.Insensitive))
	assert.ElementsMatch(t,
		[]uint32{uint32(w.IndexOf("cat")), uint32(w.IndexOf("Cat")), uint32(w.IndexOf("CAT"))},
		results.ToArray())

	results.Clear()
	require.NoError(t, r.IndexOfAll(results, "cat", collation.Sensitive))
	assert.Equal(t, []uint32{uint32(w.IndexOf("cat"))}, results.ToArray())

	results.Clear()
	require.NoError(t, r.IndexOfAll(results, "zebra", collation.Insensitive))
	assert.True(t, results.IsEmpty())

	err = r.IndexOfAll(results, "cat", collation.CaseInsensitive)
	assert.ErrorIs(t, err, collation.ErrUnsupportedConfiguration)
}

func TestTermsEqual(t *testing.T) {
	w := newWriter(t)
	r, err := w.Reader()
	require.NoError(t, err)

	cat, upper := int32(w.IndexOf("cat")), int32(w.IndexOf("CAT"))
	assert.True(t, r.TermsEqual([]int32{cat, upper}, collation.Insensitive))
	assert.False(t, r.TermsEqual([]int32{cat, upper}, collation.Sensitive))
	assert.True(t, r.TermsEqual([]int32{cat}, collation.Sensitive))
	assert.True(t, r.TermsEqual(nil, collation.Sensitive))
}

func TestReaderToleratesNoTerm(t *testing.T) {
	r, err := newWriter(t).Reader()
	require.NoError(t, err)

	assert.Equal(t, "", r.Get(NoTerm))
	assert.Equal(t, -1, r.IDToSortPosition(NoTerm, collation.Sensitive))
	assert.Equal(t, -1, r.IDToSortPosition(len(words), collation.Insensitive))
	assert.Equal(t, NoTerm, r.IndexOf("unicorn"))
}

func TestIndexOfWithoutTrie(t *testing.T) {
	w := newWriter(t)
	r, err := w.Reader(WithoutTrie())
	require.NoError(t, err)

	for _, word := range words {
		assert.Equal(t, w.IndexOf(word), r.IndexOf(word), word)
	}
	assert.Equal(t, NoTerm, r.IndexOf("unicorn"))
}

func TestIDsWithPrefix(t *testing.T) {
	w := newWriter(t)
	want := []int32{int32(w.IndexOf("cat")), int32(w.IndexOf("café")), int32(w.IndexOf("cafe")),
		int32(w.IndexOf("co-operate")), int32(w.IndexOf("cooperate"))}

	withTrie, err := w.Reader()
	require.NoError(t, err)
	assert.ElementsMatch(t, want, withTrie.IDsWithPrefix("c"))

	linear, err := w.Reader(WithoutTrie())
	require.NoError(t, err)
	assert.Equal(t, withTrie.IDsWithPrefix("c"), linear.IDsWithPrefix("c"))
	assert.Empty(t, linear.IDsWithPrefix("x"))
}

func TestIDsAtSortPosition(t *testing.T) {
	w := newWriter(t)
	r, err := w.Reader()
	require.NoError(t, err)

	pos := r.IDToSortPosition(w.IndexOf("Cat"), collation.Insensitive)
	ids := r.IDsAtSortPosition(pos, collation.Insensitive)
	assert.ElementsMatch(t, []int32{int32(w.IndexOf("cat")), int32(w.IndexOf("Cat")), int32(w.IndexOf("CAT"))}, ids)

	sorted, err := r.SortedIDs(collation.Sensitive)
	require.NoError(t, err)
	require.Len(t, sorted, len(words))
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, r.IDToSortPosition(int(sorted[i-1]), collation.Sensitive),
			r.IDToSortPosition(int(sorted[i]), collation.Sensitive))
	}
}

func TestWriteAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dat")
	w := newWriter(t, WithMaxBlockSize(12))
	require.NoError(t, w.Write(path))

	r, err := Open(path, collation.Default())
	require.NoError(t, err)

	require.Equal(t, len(words), r.NumberOfTerms())
	for _, word := range words {
		id := w.IndexOf(word)
		assert.Equal(t, word, r.Get(id))
		assert.Equal(t, id, r.IndexOf(word))
	}
}

func TestBlocksAreSplit(t *testing.T) {
	w := NewWriter(collation.Default(), WithMaxBlockSize(6))
	for _, word := range []string{"abc", "def", "ghi", "j"} {
		w.IndexOf(word)
	}

	var buf bytes.Buffer
	require.NoError(t, w.Encode(&buf))

	// n, then block 1: count 2, offsets 0 3, size 6, "abcdef"
	data := buf.Bytes()
	assert.Equal(t, []byte{0, 0, 0, 4}, data[0:4])
	assert.Equal(t, []byte{0, 0, 0, 2}, data[4:8])
	assert.Equal(t, []byte{0, 0, 0, 6}, data[16:20])
	assert.Equal(t, "abcdef", string(data[20:26]))

	f, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "ghi", "j"}, f.Terms)
}

func TestTermLargerThanBlockFails(t *testing.T) {
	w := NewWriter(collation.Default(), WithMaxBlockSize(3))
	w.IndexOf("toolong")

	var buf bytes.Buffer
	assert.ErrorIs(t, w.Encode(&buf), ErrTermTooLarge)
}

func TestEmptyDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dat")
	require.NoError(t, NewWriter(collation.Default()).Write(path))

	r, err := Open(path, collation.Default())
	require.NoError(t, err)
	assert.Zero(t, r.NumberOfTerms())
	assert.Equal(t, NoTerm, r.IndexOf("anything"))
}

func TestOpenWriterPreservesIds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dat")
	w := newWriter(t)
	require.NoError(t, w.Write(path))

	reopened, err := OpenWriter(path, collation.Default())
	require.NoError(t, err)
	for _, word := range words {
		assert.Equal(t, w.IndexOf(word), reopened.IndexOf(word))
	}
	assert.Equal(t, len(words), reopened.IndexOf("new"))
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newWriter(t).Encode(&buf))

	_, err := Decode(buf.Bytes()[:buf.Len()-3])
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestNewReaderRejectsBadPositions(t *testing.T) {
	_, err := NewReader(collation.Default(), &File{
		Terms:                []string{"a"},
		SensitivePositions:   []int32{5},
		InsensitivePositions: []int32{0},
	})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWriteFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.dat")

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("terms.dat", fs.Fault{FailAfterBytes: 2})

	w := newWriter(t, WithFileSystem(ffs))
	assert.ErrorIs(t, w.Write(path), fs.ErrInjected)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
