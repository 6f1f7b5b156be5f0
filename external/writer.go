package external

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/conv"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/freelist"
	"github.com/hupe1980/forwardindex/internal/fs"
	"github.com/hupe1980/forwardindex/internal/span"
	"github.com/hupe1980/forwardindex/terms"
)

// Writer is the indexing-time forward index of one annotation.
//
// All methods are serialized by an internal mutex, so a Writer may be
// shared, but callers normally confine it to one ingestion goroutine.
type Writer struct {
	paths     paths
	opts      options
	create    bool
	collators *collation.Collators

	mu          sync.Mutex
	initialized bool
	closed      bool
	terms       *terms.Writer
	toc         []Entry
	alloc       *freelist.Allocator
	tokens      fs.File
	capacity    int64 // tokens file size in ints
	tocModified bool
}

// Create starts a new, empty forward index in dir, replacing any existing
// one.
func Create(dir string, optFns ...Option) (*Writer, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap("mkdir", dir, err)
	}
	if err := writeVersion(opts.fs, dir); err != nil {
		return nil, err
	}

	c, err := opts.collators(collation.V2)
	if err != nil {
		return nil, err
	}

	return &Writer{paths: newPaths(dir), opts: opts, create: true, collators: c}, nil
}

// OpenWriter opens an existing forward index in dir for appending. Only
// indexes in the current format can be modified.
func OpenWriter(dir string, optFns ...Option) (*Writer, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	version, err := readVersion(opts.fs, dir)
	if err != nil {
		return nil, err
	}
	cv, writable, err := collatorVersion(dir, version)
	if err != nil {
		return nil, err
	}
	if !writable {
		return nil, fmt.Errorf("%w: %s: format version %s can only be read", ErrReadOnly, dir, version)
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

	return &Writer{paths: p, opts: opts, collators: c}, nil
}

// Dir returns the index directory.
func (w *Writer) Dir() string { return w.paths.dir }

// Collators returns the collators of the dictionary.
func (w *Writer) Collators() *collation.Collators { return w.collators }

// Initialize loads the table of contents and the dictionary and opens the
// tokens file. Every other method initializes on demand; calling it early
// only moves the cost.
func (w *Writer) Initialize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.init(ctx)
}

func (w *Writer) init(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	if w.initialized {
		return nil
	}

	termOpts := []terms.WriterOption{
		terms.WithFileSystem(w.opts.fs),
		terms.WithMaxBlockSize(w.opts.termBlockSize),
	}

	flags := os.O_RDWR | os.O_CREATE
	if w.create {
		w.terms = terms.NewWriter(w.collators, termOpts...)
		w.toc = nil
		w.tocModified = true
		flags |= os.O_TRUNC
	} else {
		toc, err := readTOC(w.opts.fs, w.paths.toc)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		tw, err := terms.OpenWriter(w.paths.terms, w.collators, termOpts...)
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return fmt.Errorf("%w: no term dictionary: %s", ErrFormat, w.paths.terms)
			}
			return errs.Wrap("read", w.paths.terms, err)
		}
		w.terms = tw
		w.toc = toc
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := w.opts.fs.OpenFile(w.paths.tokens, flags, 0o644)
	if err != nil {
		return errs.Wrap("open", w.paths.tokens, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errs.Wrap("stat", w.paths.tokens, err)
	}

	w.tokens = f
	w.capacity = fi.Size() / sizeofInt
	w.restoreFreeList()
	w.initialized = true

	w.opts.logger.Debug("forward index opened for writing",
		"dir", w.paths.dir,
		"documents", len(w.toc),
		"end", w.alloc.End(),
	)
	return nil
}

func (w *Writer) restoreFreeList() {
	var end int64
	restored := 0
	for _, e := range w.toc {
		end = max(end, dataEnd(e))
	}

	w.alloc = freelist.New(end)
	for fiid, e := range w.toc {
		if e.Deleted {
			w.alloc.Restore(fiid, e.Offset, int64(e.Length))
			if e.Length > 0 {
				restored++
			}
		}
	}
	w.alloc.Compact()

	if w.alloc.End() != end || w.alloc.FreeBlocks() != restored {
		w.tocModified = true
	}
}

// AddDocument stores the term ids of tokens and returns the document's
// fiid. increments may be nil (every token advances one position);
// otherwise it holds one position increment per token. A token with
// increment 0 shares the previous position and is not stored; an
// increment above 1 leaves empty positions that hold the id of "".
func (w *Writer) AddDocument(tokens []string, increments []int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return -1, err
	}

	ids, err := w.resolve(tokens, increments)
	if err != nil {
		return -1, err
	}

	length, err := conv.IntToInt32(len(ids))
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	size := int64(length)
	a := w.alloc.Allocate(size)
	entry := Entry{Offset: a.Offset, Length: length}
	if size == 0 {
		// Empty documents hold no data and must not pin the end of it.
		entry.Offset = 0
	}

	fiid := a.Slot
	if fiid < 0 {
		fiid = len(w.toc)
		w.toc = append(w.toc, entry)
	} else {
		w.toc[fiid] = entry
	}
	w.tocModified = true

	reserve := int64(0)
	if a.Append {
		reserve = w.opts.writeReserve
	}
	if err := w.writeTokens(a.Offset, ids, reserve); err != nil {
		w.toc[fiid].Deleted = true
		w.alloc.Free(fiid, a.Offset, size)
		return -1, err
	}

	return fiid, nil
}

func (w *Writer) resolve(tokens []string, increments []int) ([]int32, error) {
	if increments == nil {
		ids := make([]int32, len(tokens))
		for i, t := range tokens {
			ids[i] = int32(w.terms.IndexOf(t))
		}
		return ids, nil
	}

	if len(increments) != len(tokens) {
		return nil, fmt.Errorf("%w: %d tokens but %d position increments", ErrInvalidArgument, len(tokens), len(increments))
	}
	total := 0
	for _, inc := range increments {
		if inc < 0 {
			return nil, fmt.Errorf("%w: negative position increment %d", ErrInvalidArgument, inc)
		}
		total += inc
	}
	if total > int(^uint32(0)>>1) {
		return nil, fmt.Errorf("%w: document has %d positions", ErrInvalidArgument, total)
	}

	ids := make([]int32, 0, total)
	empty := int32(w.terms.IndexOf(""))
	for i, t := range tokens {
		inc := increments[i]
		if inc == 0 {
			continue
		}
		for range inc - 1 {
			ids = append(ids, empty)
		}
		ids = append(ids, int32(w.terms.IndexOf(t)))
	}
	return ids, nil
}

func (w *Writer) writeTokens(offset int64, ids []int32, reserve int64) error {
	if len(ids) == 0 {
		return nil
	}

	end := offset + int64(len(ids))
	if end > w.capacity {
		capacity := end + reserve
		if err := w.tokens.Truncate(capacity * sizeofInt); err != nil {
			return errs.Wrap("grow", w.paths.tokens, err)
		}
		w.capacity = capacity
	}

	buf := make([]byte, len(ids)*sizeofInt)
	for i, id := range ids {
		binary.BigEndian.PutUint32(buf[i*sizeofInt:], uint32(id))
	}
	if _, err := w.tokens.WriteAt(buf, offset*sizeofInt); err != nil {
		return errs.Wrap("write", w.paths.tokens, err)
	}
	return nil
}

// DeleteDocument frees the space of fiid for reuse.
func (w *Writer) DeleteDocument(fiid int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return err
	}
	if err := span.CheckID(fiid, len(w.toc)); err != nil {
		return err
	}
	e := w.toc[fiid]
	if e.Deleted {
		return nil
	}

	w.toc[fiid].Deleted = true
	w.alloc.Free(fiid, e.Offset, int64(e.Length))
	w.tocModified = true
	return nil
}

// RetrieveParts returns the term ids in each [starts[i], ends[i]) range of
// document fiid. It returns nil for a deleted document.
func (w *Writer) RetrieveParts(fiid int, starts, ends []int) ([][]int32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return nil, err
	}
	if err := span.CheckID(fiid, len(w.toc)); err != nil {
		return nil, err
	}
	if err := span.CheckPairs(starts, ends); err != nil {
		return nil, err
	}
	e := w.toc[fiid]
	if e.Deleted {
		return nil, nil
	}

	parts := make([][]int32, len(starts))
	for i := range starts {
		start, end, err := span.Resolve(int(e.Length), starts[i], ends[i])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, (end-start)*sizeofInt)
		if _, err := w.tokens.ReadAt(buf, (e.Offset+int64(start))*sizeofInt); err != nil {
			return nil, errs.Wrap("read", w.paths.tokens, err)
		}
		parts[i] = decodeInts(buf)
	}
	return parts, nil
}

// Document returns all term ids of fiid, or nil if it was deleted.
func (w *Writer) Document(fiid int) ([]int32, error) {
	parts, err := w.RetrieveParts(fiid, []int{-1}, []int{-1})
	if err != nil || parts == nil {
		return nil, err
	}
	return parts[0], nil
}

// DocLength returns the number of token slots of fiid, including the
// closing token. A deleted document has length 0.
func (w *Writer) DocLength(fiid int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return 0, err
	}
	if err := span.CheckID(fiid, len(w.toc)); err != nil {
		return 0, err
	}
	e := w.toc[fiid]
	if e.Deleted {
		return 0, nil
	}
	return int(e.Length), nil
}

// Terms returns the growing dictionary.
func (w *Writer) Terms() (terms.Dictionary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return nil, err
	}
	return w.terms, nil
}

// Stats describes the state of the tokens file.
type Stats struct {
	Documents        int   // table of contents entries, deleted included
	DeletedDocuments int   // entries marked deleted
	FreeSpace        int64 // ints held in reusable gaps
	FreeBlocks       int   // number of gaps
	TotalSize        int64 // ints up to the end-of-data pointer
}

// Stats returns the current statistics.
func (w *Writer) Stats() (Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return Stats{}, err
	}
	s := Stats{
		Documents:  len(w.toc),
		FreeSpace:  w.alloc.FreeSpace(),
		FreeBlocks: w.alloc.FreeBlocks(),
		TotalSize:  w.alloc.End(),
	}
	for _, e := range w.toc {
		if e.Deleted {
			s.DeletedDocuments++
		}
	}
	return s, nil
}

// IDSet returns the fiids of all live documents.
func (w *Writer) IDSet() (*roaring.Bitmap, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.init(context.Background()); err != nil {
		return nil, err
	}
	return liveSet(w.toc), nil
}

// Close flushes the table of contents and the dictionary if they changed,
// truncates the tokens file to its end-of-data pointer and releases it.
// Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if !w.initialized && !w.create {
		w.closed = true
		return nil
	}
	// A created index is written out even if nothing was added.
	err := w.init(context.Background())
	w.closed = true
	if err != nil {
		return err
	}

	var errList []error
	if w.tocModified {
		w.syncFreeEntries()
		if err := writeTOC(w.opts.fs, w.paths.toc, w.toc); err != nil {
			errList = append(errList, err)
		}
		if err := w.terms.Write(w.paths.terms); err != nil {
			errList = append(errList, errs.Wrap("write", w.paths.terms, err))
		}
	}

	// Windows cannot shrink a file that is still mapped elsewhere.
	if runtime.GOOS != "windows" {
		if err := w.tokens.Truncate(w.alloc.End() * sizeofInt); err != nil {
			errList = append(errList, errs.Wrap("truncate", w.paths.tokens, err))
		}
	}
	if err := w.tokens.Sync(); err != nil {
		errList = append(errList, errs.Wrap("sync", w.paths.tokens, err))
	}
	if err := w.tokens.Close(); err != nil {
		errList = append(errList, errs.Wrap("close", w.paths.tokens, err))
	}

	w.opts.logger.Debug("forward index closed",
		"dir", w.paths.dir,
		"documents", len(w.toc),
		"end", w.alloc.End(),
	)
	return errors.Join(errList...)
}

// syncFreeEntries copies the allocator's view of free space back into the
// deleted table of contents entries.
func (w *Writer) syncFreeEntries() {
	for _, g := range w.alloc.Gaps() {
		w.toc[g.Slot] = Entry{Offset: g.Offset, Length: int32(g.Length), Deleted: true}
	}
	for _, slot := range w.alloc.Recycled() {
		w.toc[slot] = Entry{Deleted: true}
	}
}

func decodeInts(buf []byte) []int32 {
	out := make([]int32, len(buf)/sizeofInt)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(buf[i*sizeofInt:]))
	}
	return out
}

func liveSet(toc []Entry) *roaring.Bitmap {
	bm := roaring.New()
	for fiid, e := range toc {
		if !e.Deleted {
			bm.Add(uint32(fiid))
		}
	}
	return bm
}
