package forwardindex

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hupe1980/forwardindex/blobstore"
	"github.com/hupe1980/forwardindex/external"
	"github.com/hupe1980/forwardindex/integrated"
	"github.com/hupe1980/forwardindex/segment"
)

// AnnotationDir returns the directory of the external index of an
// annotation of field inside the index directory dir.
func AnnotationDir(dir, field, annotation string) string {
	return filepath.Join(dir, "fi_"+AnnotationFieldName(field, annotation))
}

// Create creates empty external indexes for the annotations of field under
// dir, replacing existing ones.
func Create(dir, field string, annotations []string, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	return newForwardIndex(field, "external-create", annotations, func(a string) (AnnotationIndex, error) {
		return external.Create(AnnotationDir(dir, field, a), opts.externalOptions(a)...)
	}, opts, nil)
}

// OpenWriter opens the existing external indexes of field under dir for
// appending.
func OpenWriter(dir, field string, annotations []string, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	return newForwardIndex(field, "external-writer", annotations, func(a string) (AnnotationIndex, error) {
		return external.OpenWriter(AnnotationDir(dir, field, a), opts.externalOptions(a)...)
	}, opts, nil)
}

// Open opens the external indexes of field under dir read-only.
//
// Example:
//
//	fi, err := forwardindex.Open(dir, "contents", []string{"word", "lemma", "pos"})
//	if err != nil {
//		return err
//	}
//	defer fi.Close()
//
//	parts, err := fi.Doc(fiid).RetrieveParts("word", []int{10}, []int{15})
func Open(dir, field string, annotations []string, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	return newForwardIndex(field, "external-reader", annotations, func(a string) (AnnotationIndex, error) {
		return external.OpenReader(AnnotationDir(dir, field, a), opts.externalOptions(a)...)
	}, opts, nil)
}

// OpenIntegrated composes the segment-backed indexes of field from set.
// The caller keeps ownership of set and closes it after the ForwardIndex.
// The fiid of a document is its global doc id in set.
func OpenIntegrated(set *integrated.Set, field string, annotations []string, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	return newForwardIndex(field, "integrated", annotations, func(a string) (AnnotationIndex, error) {
		return set.Field(AnnotationFieldName(field, a)), nil
	}, opts, nil)
}

// OpenSegments opens every segment under prefix in store and composes the
// indexes of field. The returned ForwardIndex owns the segments.
func OpenSegments(ctx context.Context, store blobstore.BlobStore, prefix, field string, annotations []string, optFns ...Option) (*ForwardIndex, error) {
	opts := applyOptions(optFns)
	c, err := opts.collators()
	if err != nil {
		return nil, err
	}
	set, err := integrated.OpenPrefix(ctx, store, prefix, opts.integratedOptions(c)...)
	if err != nil {
		opts.logger.LogOpen(ctx, field, "integrated", len(annotations), err)
		return nil, err
	}
	return newForwardIndex(field, "integrated", annotations, func(a string) (AnnotationIndex, error) {
		return set.Field(AnnotationFieldName(field, a)), nil
	}, opts, []io.Closer{set})
}

// SegmentBuilder writes the annotations of field into segment files that
// OpenSegments and OpenIntegrated read.
type SegmentBuilder struct {
	field       string
	annotations []string
	b           *segment.Builder
}

// NewSegmentBuilder returns a builder for one segment. It uses the
// language, compression and term block size options.
func NewSegmentBuilder(field string, annotations []string, optFns ...Option) (*SegmentBuilder, error) {
	opts := applyOptions(optFns)
	c, err := opts.collators()
	if err != nil {
		return nil, err
	}

	fields := make([]string, len(annotations))
	for i, a := range annotations {
		fields[i] = AnnotationFieldName(field, a)
	}
	b, err := segment.NewBuilder(fields, opts.segmentOptions(c)...)
	if err != nil {
		return nil, err
	}
	return &SegmentBuilder{field: field, annotations: annotations, b: b}, nil
}

// AddDocument adds a document and returns its doc id within the segment.
// contents must hold every annotation, each covering the same number of
// positions.
func (sb *SegmentBuilder) AddDocument(contents map[string]Contents) (int, error) {
	doc := make(map[string]segment.Tokens, len(contents))
	for _, a := range sb.annotations {
		c, ok := contents[a]
		if !ok {
			return -1, fmt.Errorf("%w: document has no contents for annotation %q", ErrInvalidArgument, a)
		}
		doc[AnnotationFieldName(sb.field, a)] = segment.Tokens{Values: c.Values, Increments: c.Increments}
	}
	if len(doc) != len(contents) {
		return -1, fmt.Errorf("%w: document has contents for unknown annotations", ErrInvalidArgument)
	}
	if err := checkPositions(contents, sb.annotations); err != nil {
		return -1, err
	}
	return sb.b.AddDocument(doc)
}

// NumDocs returns the number of documents added so far.
func (sb *SegmentBuilder) NumDocs() int { return sb.b.NumDocs() }

// Write stores the segment in store under name.
func (sb *SegmentBuilder) Write(ctx context.Context, store blobstore.BlobStore, name string) error {
	return sb.b.Write(ctx, store, name)
}
