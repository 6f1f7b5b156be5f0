package integrated

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/forwardindex/blobstore"
	"github.com/hupe1980/forwardindex/internal/cache"
	"github.com/hupe1980/forwardindex/internal/span"
	"github.com/hupe1980/forwardindex/segment"
	"github.com/hupe1980/forwardindex/terms"
)

// Set is an open, ordered set of segments. It owns the segment readers.
type Set struct {
	opts    options
	readers []*segment.Reader
	bases   []int
	numDocs int

	mu      sync.Mutex
	indexes map[string]*Index
	closed  atomic.Bool
}

// Open opens the named segment files of store. The order of names fixes
// the doc bases: the first segment holds global docs [0, n0), the next
// [n0, n0+n1) and so on.
func Open(ctx context.Context, store blobstore.BlobStore, names []string, optFns ...Option) (*Set, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	segOpts := []segment.Option{
		segment.WithCollators(opts.collators),
		segment.WithResourceController(opts.rc),
		segment.WithLogger(opts.logger),
	}
	if opts.cacheBytes > 0 {
		segOpts = append(segOpts, segment.WithBlockCache(cache.NewLRUBlockCache(opts.cacheBytes, opts.rc)))
	}

	readers := make([]*segment.Reader, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			r, err := segment.Open(gctx, store, name, segOpts...)
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range readers {
			if r != nil {
				_ = r.Close()
			}
		}
		return nil, err
	}

	s := &Set{
		opts:    opts,
		readers: readers,
		bases:   make([]int, len(readers)),
		indexes: make(map[string]*Index),
	}
	for i, r := range readers {
		s.bases[i] = s.numDocs
		s.numDocs += r.NumDocs()
	}

	if len(opts.fields) > 0 {
		if err := s.Initialize(ctx, opts.fields...); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// OpenPrefix opens every segment file under prefix, in name order.
func OpenPrefix(ctx context.Context, store blobstore.BlobStore, prefix string, optFns ...Option) (*Set, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return Open(ctx, store, names, optFns...)
}

// NumSegments returns the number of segments.
func (s *Set) NumSegments() int { return len(s.readers) }

// NumDocs returns the number of documents across all segments.
func (s *Set) NumDocs() int { return s.numDocs }

// DocBase returns the first global doc id of segment seg.
func (s *Set) DocBase(seg int) int { return s.bases[seg] }

// Segment returns the reader of segment seg.
func (s *Set) Segment(seg int) *segment.Reader { return s.readers[seg] }

// Field returns the forward index of the named field. Its term space is
// merged on first use.
func (s *Set) Field(name string) *Index {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, ok := s.indexes[name]
	if !ok {
		x = &Index{set: s, field: name}
		s.indexes[name] = x
	}
	return x
}

// Initialize merges the term spaces of the named fields concurrently.
func (s *Set) Initialize(ctx context.Context, fields ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range fields {
		x := s.Field(name)
		g.Go(func() error { return x.Initialize(gctx) })
	}
	return g.Wait()
}

// Close closes every segment reader.
func (s *Set) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	for _, x := range s.indexes {
		x.closed.Store(true)
	}
	s.mu.Unlock()

	var errList []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// locate returns the segment and local doc id of global doc.
func (s *Set) locate(doc int) (int, int, error) {
	if err := span.CheckID(doc, s.numDocs); err != nil {
		return 0, 0, err
	}
	seg := sort.Search(len(s.bases), func(i int) bool { return s.bases[i] > doc }) - 1
	return seg, doc - s.bases[seg], nil
}

// Index is the forward index of one field across the segments of a Set.
// It is read-only and safe for concurrent use. Term ids it returns are
// global ids of Terms.
type Index struct {
	set    *Set
	field  string
	mu     sync.Mutex
	terms  atomic.Pointer[Terms]
	fields []*segment.Field
	closed atomic.Bool
}

// Name returns the field name.
func (x *Index) Name() string { return x.field }

// Initialize merges the term space of the field. A merge stopped by ctx
// leaves the index uninitialized; the next call retries it.
func (x *Index) Initialize(ctx context.Context) error {
	_, err := x.load(ctx)
	return err
}

func (x *Index) load(ctx context.Context) (*Terms, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	if t := x.terms.Load(); t != nil {
		return t, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if t := x.terms.Load(); t != nil {
		return t, nil
	}

	fields := make([]*segment.Field, len(x.set.readers))
	for i, r := range x.set.readers {
		f, err := r.Field(x.field)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}

	start := time.Now()
	t, err := Merge(ctx, x.set.opts.collators, fields)
	if err != nil {
		return nil, fmt.Errorf("integrated: field %q: %w", x.field, err)
	}
	x.fields = fields
	x.terms.Store(t)

	x.set.opts.logger.Info("term spaces merged",
		"field", x.field,
		"segments", len(fields),
		"terms", t.Reader().NumberOfTerms(),
		"duration", time.Since(start),
	)
	return t, nil
}

// Global returns the merged term space.
func (x *Index) Global(ctx context.Context) (*Terms, error) {
	return x.load(ctx)
}

// Terms returns the global dictionary.
func (x *Index) Terms() (terms.Dictionary, error) {
	t, err := x.load(context.Background())
	if err != nil {
		return nil, err
	}
	return t.Reader(), nil
}

// AddDocument is not supported: the segment store owns the documents.
func (x *Index) AddDocument([]string, []int) (int, error) {
	return -1, fmt.Errorf("%w: documents of field %q are added through segments", ErrReadOnly, x.field)
}

// DeleteDocument is not supported: the segment store owns the documents.
func (x *Index) DeleteDocument(int) error {
	return fmt.Errorf("%w: documents of field %q are deleted through segments", ErrReadOnly, x.field)
}

// RetrieveParts returns the global term ids in each [starts[i], ends[i])
// range of global doc. Positions without a value hold terms.NoTerm.
func (x *Index) RetrieveParts(doc int, starts, ends []int) ([][]int32, error) {
	t, err := x.load(context.Background())
	if err != nil {
		return nil, err
	}
	seg, local, err := x.set.locate(doc)
	if err != nil {
		return nil, err
	}

	parts, err := x.fields[seg].RetrieveParts(local, starts, ends)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if _, err := t.SegmentIDsToGlobalIDs(seg, p); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// Document returns all global term ids of doc.
func (x *Index) Document(doc int) ([]int32, error) {
	parts, err := x.RetrieveParts(doc, []int{-1}, []int{-1})
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// DocLength returns the number of positions of doc.
func (x *Index) DocLength(doc int) (int, error) {
	if _, err := x.load(context.Background()); err != nil {
		return 0, err
	}
	seg, local, err := x.set.locate(doc)
	if err != nil {
		return 0, err
	}
	return x.fields[seg].DocLength(local)
}

// IDSet returns every global doc id. Deletions are tracked by the
// segment store, not here.
func (x *Index) IDSet() (*roaring.Bitmap, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	b := roaring.New()
	b.AddRange(0, uint64(x.set.numDocs))
	return b, nil
}

// Close closes the index. The segment readers stay open until the Set is
// closed.
func (x *Index) Close() error {
	x.closed.Store(true)
	return nil
}
