package forwardindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/forwardindex/external"
	"github.com/hupe1980/forwardindex/integrated"
	"github.com/hupe1980/forwardindex/internal/resource"
	"github.com/hupe1980/forwardindex/terms"
)

// AnnotationIndex is the forward index of one annotation of a field.
// external.Writer, external.Reader and integrated.Index implement it.
type AnnotationIndex interface {
	// Initialize loads the index. Every other method initializes on
	// demand; a call stopped by ctx leaves the index uninitialized.
	Initialize(ctx context.Context) error
	AddDocument(tokens []string, increments []int) (int, error)
	DeleteDocument(fiid int) error
	RetrieveParts(fiid int, starts, ends []int) ([][]int32, error)
	Document(fiid int) ([]int32, error)
	DocLength(fiid int) (int, error)
	Terms() (terms.Dictionary, error)
	IDSet() (*roaring.Bitmap, error)
	Close() error
}

var (
	_ AnnotationIndex = (*external.Writer)(nil)
	_ AnnotationIndex = (*external.Reader)(nil)
	_ AnnotationIndex = (*integrated.Index)(nil)
)

// AnnotationFieldName returns the name under which an annotation of field
// is indexed, e.g. "contents%lemma".
func AnnotationFieldName(field, annotation string) string {
	return field + "%" + annotation
}

// FiidFieldName returns the record field that holds the fiid of a
// document for an annotation, e.g. "contents%lemma#fiid".
func FiidFieldName(field, annotation string) string {
	return AnnotationFieldName(field, annotation) + "#fiid"
}

// Contents is the token stream of one annotation of one document.
// Increments is nil or holds one position increment per value; a value
// with increment 0 shares the previous position. Callers that want a
// closing token slot after the last word add it as a final value.
type Contents struct {
	Values     []string
	Increments []int
}

func (c Contents) positions() int {
	if c.Increments == nil {
		return len(c.Values)
	}
	n := 0
	for _, inc := range c.Increments {
		n += inc
	}
	return n
}

// checkPositions reports an error unless the contents of every named
// annotation cover the same number of positions.
func checkPositions(contents map[string]Contents, names []string) error {
	want := contents[names[0]].positions()
	for _, name := range names[1:] {
		if n := contents[name].positions(); n != want {
			return fmt.Errorf("%w: annotation %q has %d positions, %q has %d",
				ErrInvalidArgument, name, n, names[0], want)
		}
	}
	return nil
}

// Record holds the stored fields of a document as kept by the search
// engine. AddDocument records the fiids on it.
type Record map[string]string

// Fiid returns the fiid stored on r for an annotation of field.
func (r Record) Fiid(field, annotation string) (int, error) {
	v, ok := r[FiidFieldName(field, annotation)]
	if !ok {
		return -1, fmt.Errorf("%w: record has no %s", ErrNotFound, FiidFieldName(field, annotation))
	}
	fiid, err := strconv.Atoi(v)
	if err != nil {
		return -1, fmt.Errorf("%w: %s is %q", ErrInvalidArgument, FiidFieldName(field, annotation), v)
	}
	return fiid, nil
}

type annotation struct {
	name  string
	index AnnotationIndex
	ready atomic.Bool
}

// ForwardIndex is the forward index of one field: one AnnotationIndex per
// annotation, addressed by a shared fiid. Reads are safe for concurrent
// use; adds and deletes are serialized.
type ForwardIndex struct {
	field    string
	strategy string
	opts     options
	rc       *resource.Controller

	annotations []*annotation
	byName      map[string]*annotation
	owned       []io.Closer

	mu     sync.Mutex
	cancel context.CancelFunc
	bg     *pool.ContextPool
	closed atomic.Bool
}

// OpenFunc opens the index of one annotation.
type OpenFunc func(annotation string) (AnnotationIndex, error)

// New opens the index of every annotation with open and composes them.
// The first annotation is the main one. Unless disabled, the indexes
// start initializing in the background.
func New(field string, annotations []string, open OpenFunc, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	return newForwardIndex(field, "custom", annotations, open, opts, nil)
}

func newForwardIndex(field, strategy string, annotations []string, open OpenFunc, opts options, owned []io.Closer) (*ForwardIndex, error) {
	fi, err := compose(field, strategy, annotations, open, opts, owned)
	opts.logger.LogOpen(context.Background(), field, strategy, len(annotations), err)
	if err != nil {
		for _, c := range owned {
			_ = c.Close()
		}
		return nil, err
	}
	if opts.background {
		fi.startBackground()
	}
	return fi, nil
}

func compose(field, strategy string, annotations []string, open OpenFunc, opts options, owned []io.Closer) (*ForwardIndex, error) {
	if len(annotations) == 0 {
		return nil, fmt.Errorf("%w: field %q has no annotations", ErrInvalidArgument, field)
	}

	fi := &ForwardIndex{
		field:    field,
		strategy: strategy,
		opts:     opts,
		rc:       opts.rc,
		byName:   make(map[string]*annotation, len(annotations)),
	}
	for _, name := range annotations {
		if _, dup := fi.byName[name]; dup || name == "" {
			fi.closeIndexes()
			return nil, fmt.Errorf("%w: invalid or duplicate annotation %q", ErrInvalidArgument, name)
		}
		idx, err := open(name)
		if err != nil {
			fi.closeIndexes()
			return nil, fmt.Errorf("forwardindex: annotation %q: %w", name, err)
		}
		a := &annotation{name: name, index: idx}
		fi.annotations = append(fi.annotations, a)
		fi.byName[name] = a
	}
	fi.owned = owned
	return fi, nil
}

// startBackground initializes every annotation index on a pool. Slots
// come from the resource controller, so at most the configured number of
// workers load at once.
func (fi *ForwardIndex) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	fi.cancel = cancel
	fi.bg = pool.New().WithContext(ctx)

	for _, a := range fi.annotations {
		fi.bg.Go(func(ctx context.Context) error {
			if err := fi.rc.AcquireBackground(ctx); err != nil {
				fi.opts.logger.LogInitialize(ctx, a.name, 0, err)
				return nil
			}
			defer fi.rc.ReleaseBackground()

			// Failures are reported again on first use.
			_ = fi.initialize(ctx, a)
			return nil
		})
	}
}

func (fi *ForwardIndex) initialize(ctx context.Context, a *annotation) error {
	if a.ready.Load() {
		return nil
	}

	start := time.Now()
	err := a.index.Initialize(ctx)
	d := time.Since(start)
	fi.opts.logger.LogInitialize(ctx, a.name, d, err)
	if err != nil {
		if !isCancellation(err) {
			fi.opts.metrics.OnInitialize(a.name, d, err)
		}
		return err
	}
	if !a.ready.CompareAndSwap(false, true) {
		return nil
	}
	fi.opts.metrics.OnInitialize(a.name, d, nil)

	if x, ok := a.index.(*integrated.Index); ok {
		if t, err := x.Global(ctx); err == nil {
			n := t.Reader().NumberOfTerms()
			fi.opts.metrics.OnMerge(a.name, t.NumSegments(), n, d)
			fi.opts.logger.LogMerge(ctx, a.name, t.NumSegments(), n, d)
		}
	}
	return nil
}

// Initialize initializes every annotation index that is not loaded yet
// and waits for it.
func (fi *ForwardIndex) Initialize(ctx context.Context) error {
	if fi.closed.Load() {
		return ErrClosed
	}
	var errList []error
	for _, a := range fi.annotations {
		if err := fi.initialize(ctx, a); err != nil {
			errList = append(errList, fmt.Errorf("annotation %q: %w", a.name, err))
		}
	}
	return errors.Join(errList...)
}

// get returns the named annotation, initialized.
func (fi *ForwardIndex) get(name string) (*annotation, error) {
	if fi.closed.Load() {
		return nil, ErrClosed
	}
	a, ok := fi.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: field %q has no annotation %q", ErrNotFound, fi.field, name)
	}
	if err := fi.initialize(context.Background(), a); err != nil {
		return nil, fmt.Errorf("annotation %q: %w", name, err)
	}
	return a, nil
}

// Field returns the field name.
func (fi *ForwardIndex) Field() string { return fi.field }

// Annotations returns the annotation names; the first is the main one.
func (fi *ForwardIndex) Annotations() []string {
	names := make([]string, len(fi.annotations))
	for i, a := range fi.annotations {
		names[i] = a.name
	}
	return names
}

// Annotation returns the initialized index of the named annotation.
func (fi *ForwardIndex) Annotation(name string) (AnnotationIndex, error) {
	a, err := fi.get(name)
	if err != nil {
		return nil, err
	}
	return a.index, nil
}

// Terms returns the dictionary of the named annotation.
func (fi *ForwardIndex) Terms(name string) (terms.Dictionary, error) {
	a, err := fi.get(name)
	if err != nil {
		return nil, err
	}
	return a.index.Terms()
}

// LiveDocs returns the fiids of all live documents.
func (fi *ForwardIndex) LiveDocs() (*roaring.Bitmap, error) {
	a, err := fi.get(fi.annotations[0].name)
	if err != nil {
		return nil, err
	}
	return a.index.IDSet()
}

// AddDocument adds one document to every annotation and returns its fiid.
// contents must hold every annotation, each covering the same number of
// positions. The fiid is recorded on record
// under FiidFieldName for each annotation; record may be nil.
//
// All annotation indexes of a field assign fiids in step. If one of them
// fails, the document is removed from the others again.
func (fi *ForwardIndex) AddDocument(record Record, contents map[string]Contents) (int, error) {
	if fi.closed.Load() {
		return -1, ErrClosed
	}
	for name := range contents {
		if _, ok := fi.byName[name]; !ok {
			return -1, fmt.Errorf("%w: field %q has no annotation %q", ErrInvalidArgument, fi.field, name)
		}
	}
	for _, a := range fi.annotations {
		if _, ok := contents[a.name]; !ok {
			return -1, fmt.Errorf("%w: document has no contents for annotation %q", ErrInvalidArgument, a.name)
		}
	}
	if err := checkPositions(contents, fi.Annotations()); err != nil {
		return -1, err
	}

	fi.mu.Lock()
	defer fi.mu.Unlock()

	fiid := -1
	var added []*annotation
	rollback := func(err error) (int, error) {
		for _, a := range added {
			_ = a.index.DeleteDocument(fiid)
		}
		return -1, err
	}

	for _, name := range fi.Annotations() {
		a, err := fi.get(name)
		if err != nil {
			return rollback(err)
		}
		c := contents[name]

		start := time.Now()
		id, err := a.index.AddDocument(c.Values, c.Increments)
		fi.opts.metrics.OnAddDocument(name, c.positions(), time.Since(start), err)
		if err != nil {
			return rollback(fmt.Errorf("annotation %q: %w", name, err))
		}
		if fiid >= 0 && id != fiid {
			_ = a.index.DeleteDocument(id)
			return rollback(fmt.Errorf("%w: annotation %q assigned fiid %d, expected %d", ErrFormat, name, id, fiid))
		}
		fiid = id
		added = append(added, a)
	}

	if record != nil {
		for _, a := range fi.annotations {
			record[FiidFieldName(fi.field, a.name)] = strconv.Itoa(fiid)
		}
	}
	return fiid, nil
}

// Doc returns a handle for the document with the given fiid.
func (fi *ForwardIndex) Doc(fiid int) Doc {
	return Doc{fi: fi, fiid: fiid}
}

// DocFromRecord returns the handle for the fiid stored on record.
func (fi *ForwardIndex) DocFromRecord(record Record) (Doc, error) {
	fiid, err := record.Fiid(fi.field, fi.annotations[0].name)
	if err != nil {
		return Doc{}, err
	}
	return fi.Doc(fiid), nil
}

func (fi *ForwardIndex) closeIndexes() error {
	var errList []error
	for _, a := range fi.annotations {
		if err := a.index.Close(); err != nil {
			errList = append(errList, fmt.Errorf("annotation %q: %w", a.name, err))
		}
	}
	for _, c := range fi.owned {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Close stops background initialization and closes every annotation
// index. Writers flush their table of contents and dictionary. Close is
// idempotent.
func (fi *ForwardIndex) Close() error {
	if !fi.closed.CompareAndSwap(false, true) {
		return nil
	}
	if fi.cancel != nil {
		fi.cancel()
		_ = fi.bg.Wait()
	}

	fi.mu.Lock()
	defer fi.mu.Unlock()

	err := fi.closeIndexes()
	fi.opts.logger.LogClose(context.Background(), fi.field, err)
	return err
}

// Doc is a handle for one document of a ForwardIndex.
type Doc struct {
	fi   *ForwardIndex
	fiid int
}

// ID returns the fiid.
func (d Doc) ID() int { return d.fiid }

// RetrieveParts returns the term ids of the annotation in each
// [starts[i], ends[i]) range. -1 stands for the start or end of the
// document. It returns nil for a deleted document.
func (d Doc) RetrieveParts(annotation string, starts, ends []int) ([][]int32, error) {
	a, err := d.fi.get(annotation)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	parts, err := a.index.RetrieveParts(d.fiid, starts, ends)
	d.fi.opts.metrics.OnRetrieve(annotation, len(starts), time.Since(start), err)
	return parts, err
}

// Document returns all term ids of the annotation.
func (d Doc) Document(annotation string) ([]int32, error) {
	parts, err := d.RetrieveParts(annotation, []int{-1}, []int{-1})
	if err != nil || parts == nil {
		return nil, err
	}
	return parts[0], nil
}

// Strings returns the terms of the annotation in each range.
func (d Doc) Strings(annotation string, starts, ends []int) ([][]string, error) {
	parts, err := d.RetrieveParts(annotation, starts, ends)
	if err != nil || parts == nil {
		return nil, err
	}
	dict, err := d.fi.Terms(annotation)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(parts))
	for i, p := range parts {
		out[i] = make([]string, len(p))
		for j, id := range p {
			out[i][j] = dict.Get(int(id))
		}
	}
	return out, nil
}

// DocLength returns the number of positions of the document. All
// annotations of a field have the same length, so the main one is used.
func (d Doc) DocLength() (int, error) {
	a, err := d.fi.get(d.fi.annotations[0].name)
	if err != nil {
		return 0, err
	}
	return a.index.DocLength(d.fiid)
}

// Delete deletes the document from every annotation.
func (d Doc) Delete() error {
	if d.fi.closed.Load() {
		return ErrClosed
	}
	d.fi.mu.Lock()
	defer d.fi.mu.Unlock()

	var errList []error
	for _, name := range d.fi.Annotations() {
		a, err := d.fi.get(name)
		if err == nil {
			err = a.index.DeleteDocument(d.fiid)
		}
		d.fi.opts.metrics.OnDeleteDocument(name, err)
		if err != nil {
			errList = append(errList, fmt.Errorf("annotation %q: %w", name, err))
		}
	}
	return errors.Join(errList...)
}
