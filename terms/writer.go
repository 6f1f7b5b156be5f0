package terms

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/fs"
)

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	maxBlockSize int
	fs           fs.FileSystem
}

// WithMaxBlockSize bounds the bytes per terms block. Tests use small values.
func WithMaxBlockSize(n int) WriterOption {
	return func(o *writerOptions) { o.maxBlockSize = n }
}

// WithFileSystem sets the file system used by Write and OpenWriter.
func WithFileSystem(fsys fs.FileSystem) WriterOption {
	return func(o *writerOptions) { o.fs = fsys }
}

// Writer grows a term dictionary during ingestion. Terms that collate equal
// under the sensitive collator share one id. A Writer is not safe for
// concurrent use.
type Writer struct {
	collators *collation.Collators
	opts      writerOptions

	ids   map[string]int32 // sensitive collation key -> id
	terms []string
	keys  [][]byte
}

// NewWriter returns an empty Writer.
func NewWriter(c *collation.Collators, optFns ...WriterOption) *Writer {
	opts := writerOptions{maxBlockSize: DefaultMaxBlockSize, fs: fs.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Writer{
		collators: c,
		opts:      opts,
		ids:       make(map[string]int32),
	}
}

// OpenWriter loads the terms file at path so more terms can be added. Ids
// of existing terms are preserved.
func OpenWriter(path string, c *collation.Collators, optFns ...WriterOption) (*Writer, error) {
	w := NewWriter(c, optFns...)

	data, err := w.opts.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, t := range f.Terms {
		w.add(t)
	}
	return w, nil
}

// IndexOf returns the id of term, assigning the next free id if the term
// has not been seen yet.
func (w *Writer) IndexOf(term string) int {
	key := w.collators.Sensitive().Key(term)
	if id, ok := w.ids[string(key)]; ok {
		return int(id)
	}
	return w.insert(term, key)
}

// add appends a term read back from disk. Ids must stay positional even
// if the file holds two terms with equal keys.
func (w *Writer) add(term string) {
	key := w.collators.Sensitive().Key(term)
	if _, ok := w.ids[string(key)]; ok {
		w.terms = append(w.terms, term)
		w.keys = append(w.keys, key)
		return
	}
	w.insert(term, key)
}

func (w *Writer) insert(term string, key []byte) int {
	id := len(w.terms)
	w.ids[string(key)] = int32(id)
	w.terms = append(w.terms, term)
	w.keys = append(w.keys, key)
	return id
}

// Get returns the term with the given id, or "" if there is none.
func (w *Writer) Get(id int) string {
	if id < 0 || id >= len(w.terms) {
		return ""
	}
	return w.terms[id]
}

// NumberOfTerms returns the number of ids assigned so far.
func (w *Writer) NumberOfTerms() int { return len(w.terms) }

// Build computes the sort positions of every id.
//
// Under each collator every run of equal keys gets the index of its first
// member, so sensitive positions are dense ranks while insensitive
// positions are ordered but not dense.
func (w *Writer) Build() *File {
	_, sensitive := SortOrder(w.keys)

	insensitiveKeys := make([][]byte, len(w.terms))
	ic := w.collators.Insensitive()
	for i, t := range w.terms {
		insensitiveKeys[i] = ic.Key(t)
	}
	_, insensitive := SortOrder(insensitiveKeys)

	return &File{
		Terms:                slices.Clone(w.terms),
		SensitivePositions:   sensitive,
		InsensitivePositions: insensitive,
	}
}

// Encode writes the dictionary to out in the terms file layout.
func (w *Writer) Encode(out io.Writer) error {
	return Encode(out, w.Build(), w.opts.maxBlockSize)
}

// Write atomically replaces the terms file at path.
func (w *Writer) Write(path string) error {
	return fs.WriteFileAtomic(w.opts.fs, path, w.Encode)
}

// SortOrder sorts the ids 0..len(keys)-1 stably by collation key. It
// returns the ids in that order and, per id, the index of the first id of
// its run of equal keys.
func SortOrder(keys [][]byte) (order, positions []int32) {
	n := len(keys)
	order = make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortStableFunc(order, func(a, b int32) int {
		return bytes.Compare(keys[a], keys[b])
	})

	positions = make([]int32, n)
	var pos int32
	for i, id := range order {
		if i == 0 || !bytes.Equal(keys[id], keys[order[i-1]]) {
			pos = int32(i)
		}
		positions[id] = pos
	}
	return order, positions
}

// Reader builds an in-memory reader over the current contents.
func (w *Writer) Reader(optFns ...ReaderOption) (*Reader, error) {
	return NewReader(w.collators, w.Build(), optFns...)
}
