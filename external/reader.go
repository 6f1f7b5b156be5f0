package external

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/mmap"
	"github.com/hupe1980/forwardindex/internal/span"
	"github.com/hupe1980/forwardindex/terms"
)

// Reader is the search-time forward index of one annotation. It never
// modifies the index directory and is safe for concurrent use.
//
// The tokens file is mapped in chunks of at most the configured chunk
// size. Every chunk starts at a document start, so each document lies
// entirely within one chunk. Mapped chunks are immutable byte slices;
// concurrent reads need no per-chunk positioning and only share a read
// lock against Close.
type Reader struct {
	paths     paths
	opts      options
	version   string
	collators *collation.Collators

	mu     sync.RWMutex
	state  *readerState
	closed bool
}

type readerState struct {
	toc    []Entry
	terms  *terms.Reader
	end    int64 // ints
	chunks []chunk
	free   int64
	blocks int
}

type chunk struct {
	offset int64 // ints
	m      *mmap.Mapping
}

func (c chunk) ints() int64 { return int64(c.m.Size()) / sizeofInt }

// OpenReader opens the forward index in dir for reading. The version
// marker and table of contents are checked immediately; loading happens
// in Initialize or on first use.
func OpenReader(dir string, optFns ...Option) (*Reader, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if _, err := opts.fs.Stat(dir); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: forward index directory does not exist: %s", ErrFormat, dir)
		}
		return nil, errs.Wrap("stat", dir, err)
	}

	version, err := readVersion(opts.fs, dir)
	if err != nil {
		return nil, err
	}
	cv, _, err := collatorVersion(dir, version)
	if err != nil {
		return nil, err
	}

	p := newPaths(dir)
	if _, err := opts.fs.Stat(p.toc); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no table of contents: %s", ErrFormat, p.toc)
		}
		return nil, errs.Wrap("stat", p.toc, err)
	}

	c, err := opts.collators(cv)
	if err != nil {
		return nil, err
	}

	return &Reader{paths: p, opts: opts, version: version, collators: c}, nil
}

// Dir returns the index directory.
func (r *Reader) Dir() string { return r.paths.dir }

// Version returns the on-disk format version.
func (r *Reader) Version() string { return r.version }

// Collators returns the collators the dictionary was sorted with.
func (r *Reader) Collators() *collation.Collators { return r.collators }

// Initialize reads the table of contents, loads the dictionary and maps
// the tokens file. It returns ctx.Err() if ctx is done between steps, in
// which case the reader stays uninitialized and a later call retries.
func (r *Reader) Initialize(ctx context.Context) error {
	_, err := r.load(ctx)
	return err
}

// load returns the initialized state. The caller must not hold r.mu.
func (r *Reader) load(ctx context.Context) (*readerState, error) {
	r.mu.RLock()
	st, closed := r.state, r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if st != nil {
		return st, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.state != nil {
		return r.state, nil
	}

	st, err := r.initialize(ctx)
	if err != nil {
		return nil, err
	}
	r.state = st

	r.opts.logger.Debug("forward index loaded",
		"dir", r.paths.dir,
		"documents", len(st.toc),
		"terms", st.terms.NumberOfTerms(),
		"chunks", len(st.chunks),
	)
	return st, nil
}

func (r *Reader) initialize(ctx context.Context) (*readerState, error) {
	toc, err := readTOC(r.opts.fs, r.paths.toc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var termOpts []terms.ReaderOption
	if !r.opts.trie {
		termOpts = append(termOpts, terms.WithoutTrie())
	}
	tr, err := terms.Open(r.paths.terms, r.collators, termOpts...)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no term dictionary: %s", ErrFormat, r.paths.terms)
		}
		return nil, errs.Wrap("read", r.paths.terms, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := &readerState{toc: toc, terms: tr}
	for _, e := range toc {
		if e.Deleted {
			st.free += int64(e.Length)
			if e.Length > 0 {
				st.blocks++
			}
			continue
		}
		st.end = max(st.end, dataEnd(e))
	}

	if err := r.mapTokens(ctx, st); err != nil {
		for _, c := range st.chunks {
			_ = c.m.Close()
		}
		return nil, err
	}
	return st, nil
}

func (r *Reader) mapTokens(ctx context.Context, st *readerState) error {
	if st.end == 0 {
		return nil
	}

	f, err := os.Open(r.paths.tokens)
	if err != nil {
		return errs.Wrap("open", r.paths.tokens, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errs.Wrap("stat", r.paths.tokens, err)
	}
	if fi.Size() < st.end*sizeofInt {
		return fmt.Errorf("%w: %s is %d bytes, documents need %d", ErrFormat, r.paths.tokens, fi.Size(), st.end*sizeofInt)
	}

	docs := liveExtents(st.toc)

	chunkInts := r.opts.chunkSize / sizeofInt
	var mapped int64
	for mapped < st.end {
		if err := ctx.Err(); err != nil {
			return err
		}

		// A chunk starts at the document that crosses the mapped boundary,
		// or at the next document if the boundary falls in a gap.
		i := sort.Search(len(docs), func(i int) bool { return docs[i].start > mapped }) - 1
		if i < 0 || docs[i].end <= mapped {
			i++
		}
		if i == len(docs) {
			break
		}
		d := docs[i]
		if d.end-d.start > chunkInts {
			return fmt.Errorf("%w: %s: document at offset %d is larger than the chunk size", ErrFormat, r.paths.tokens, d.start)
		}
		from := d.start
		size := min(st.end-from, chunkInts)

		m, err := mmap.MapRange(f, from*sizeofInt, size*sizeofInt)
		if err != nil {
			return errs.Wrap("mmap", r.paths.tokens, err)
		}
		_ = m.Advise(mmap.AccessRandom)

		st.chunks = append(st.chunks, chunk{offset: from, m: m})
		mapped = from + size
	}
	return nil
}

// extent is the range of token slots of one live document.
type extent struct{ start, end int64 }

// liveExtents returns the non-empty live documents ordered by offset.
func liveExtents(toc []Entry) []extent {
	docs := make([]extent, 0, len(toc))
	for _, e := range toc {
		if !e.Deleted && e.Length > 0 {
			docs = append(docs, extent{start: e.Offset, end: e.End()})
		}
	}
	slices.SortFunc(docs, func(a, b extent) int { return cmp.Compare(a.start, b.start) })
	return docs
}

// slice returns the bytes of ints [from, to) of the tokens file.
func (st *readerState) slice(from, to int64) ([]byte, bool) {
	i := sort.Search(len(st.chunks), func(i int) bool { return st.chunks[i].offset > from }) - 1
	if i < 0 {
		return nil, false
	}
	c := st.chunks[i]
	if to > c.offset+c.ints() {
		return nil, false
	}
	return c.m.Bytes()[(from-c.offset)*sizeofInt : (to-c.offset)*sizeofInt], true
}

// acquire initializes on demand and takes the read lock. The caller must
// release it.
func (r *Reader) acquire() (*readerState, error) {
	if _, err := r.load(context.Background()); err != nil {
		return nil, err
	}
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	return r.state, nil
}

// AddDocument fails: a Reader never modifies the index.
func (r *Reader) AddDocument([]string, []int) (int, error) {
	return -1, fmt.Errorf("%w: %s is open for reading", ErrReadOnly, r.paths.dir)
}

// DeleteDocument fails: a Reader never modifies the index.
func (r *Reader) DeleteDocument(int) error {
	return fmt.Errorf("%w: %s is open for reading", ErrReadOnly, r.paths.dir)
}

// RetrieveParts returns the term ids in each [starts[i], ends[i]) range of
// document fiid. It returns nil for a deleted document.
func (r *Reader) RetrieveParts(fiid int, starts, ends []int) ([][]int32, error) {
	st, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	return st.retrieve(r.paths.tokens, fiid, starts, ends)
}

func (st *readerState) retrieve(path string, fiid int, starts, ends []int) ([][]int32, error) {
	if err := span.CheckID(fiid, len(st.toc)); err != nil {
		return nil, err
	}
	if err := span.CheckPairs(starts, ends); err != nil {
		return nil, err
	}
	e := st.toc[fiid]
	if e.Deleted {
		return nil, nil
	}

	parts := make([][]int32, len(starts))
	for i := range starts {
		start, end, err := span.Resolve(int(e.Length), starts[i], ends[i])
		if err != nil {
			return nil, err
		}
		if start == end {
			parts[i] = []int32{}
			continue
		}
		b, ok := st.slice(e.Offset+int64(start), e.Offset+int64(end))
		if !ok {
			return nil, fmt.Errorf("%w: %s: no mapped chunk holds fiid %d", ErrFormat, path, fiid)
		}
		parts[i] = decodeInts(b)
	}
	return parts, nil
}

// Document returns all term ids of fiid, or nil if it was deleted.
func (r *Reader) Document(fiid int) ([]int32, error) {
	parts, err := r.RetrieveParts(fiid, []int{-1}, []int{-1})
	if err != nil || parts == nil {
		return nil, err
	}
	return parts[0], nil
}

// GetToken returns the term id at position pos of fiid.
func (r *Reader) GetToken(fiid, pos int) (int, error) {
	st, err := r.acquire()
	if err != nil {
		return terms.NoTerm, err
	}
	defer r.mu.RUnlock()

	if err := span.CheckID(fiid, len(st.toc)); err != nil {
		return terms.NoTerm, err
	}
	e := st.toc[fiid]
	if e.Deleted {
		return terms.NoTerm, nil
	}
	if pos < 0 || pos >= int(e.Length) {
		return terms.NoTerm, fmt.Errorf("%w: position %d of document with length %d", ErrInvalidArgument, pos, e.Length)
	}
	b, ok := st.slice(e.Offset+int64(pos), e.Offset+int64(pos)+1)
	if !ok {
		return terms.NoTerm, fmt.Errorf("%w: %s: no mapped chunk holds fiid %d", ErrFormat, r.paths.tokens, fiid)
	}
	return int(int32(binary.BigEndian.Uint32(b))), nil
}

// DocLength returns the number of token slots of fiid, including the
// closing token. A deleted document has length 0.
func (r *Reader) DocLength(fiid int) (int, error) {
	st, err := r.acquire()
	if err != nil {
		return 0, err
	}
	defer r.mu.RUnlock()

	if err := span.CheckID(fiid, len(st.toc)); err != nil {
		return 0, err
	}
	e := st.toc[fiid]
	if e.Deleted {
		return 0, nil
	}
	return int(e.Length), nil
}

// Terms returns the dictionary.
func (r *Reader) Terms() (terms.Dictionary, error) {
	st, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()
	return st.terms, nil
}

// TermsReader returns the dictionary with its sort positions.
func (r *Reader) TermsReader() (*terms.Reader, error) {
	st, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()
	return st.terms, nil
}

// Stats returns statistics about the tokens file.
func (r *Reader) Stats() (Stats, error) {
	st, err := r.acquire()
	if err != nil {
		return Stats{}, err
	}
	defer r.mu.RUnlock()

	s := Stats{
		Documents:  len(st.toc),
		FreeSpace:  st.free,
		FreeBlocks: st.blocks,
		TotalSize:  st.end,
	}
	for _, e := range st.toc {
		if e.Deleted {
			s.DeletedDocuments++
		}
	}
	return s, nil
}

// IDSet returns the fiids of all live documents.
func (r *Reader) IDSet() (*roaring.Bitmap, error) {
	st, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()
	return liveSet(st.toc), nil
}

// ForEachDocument calls fn with the term ids of every live document in
// fiid order. It stops at the first error fn returns. fn runs under the
// reader's lock and must not call Close.
func (r *Reader) ForEachDocument(fn func(fiid int, ids []int32) error) error {
	st, err := r.acquire()
	if err != nil {
		return err
	}
	defer r.mu.RUnlock()

	for fiid, e := range st.toc {
		if e.Deleted {
			continue
		}
		parts, err := st.retrieve(r.paths.tokens, fiid, []int{-1}, []int{-1})
		if err != nil {
			return err
		}
		if err := fn(fiid, parts[0]); err != nil {
			return err
		}
	}
	return nil
}

// Close unmaps the tokens file. It waits for in-flight reads and is
// idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.state == nil {
		return nil
	}

	var errList []error
	for _, c := range r.state.chunks {
		if err := c.m.Close(); err != nil {
			errList = append(errList, errs.Wrap("munmap", r.paths.tokens, err))
		}
	}
	r.state = nil
	return errors.Join(errList...)
}
