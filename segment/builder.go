package segment

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/hupe1980/forwardindex/blobstore"
	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/hash"
	"github.com/hupe1980/forwardindex/terms"
)

// Tokens is the token stream of one field of one document. Increments is
// either nil or holds one position increment per value; see AddDocument.
type Tokens struct {
	Values     []string
	Increments []int
}

// Builder collects the documents of one segment and encodes its file.
// A Builder is not safe for concurrent use.
type Builder struct {
	opts   options
	fields []*fieldBuilder
	byName map[string]*fieldBuilder
	docs   int
}

type fieldBuilder struct {
	name  string
	ids   map[string]int32 // term -> build id, in first-seen order
	terms []string
	docs  [][]int32 // build ids per document
}

// NewBuilder returns a Builder for a segment with the given fields.
func NewBuilder(fields []string, optFns ...Option) (*Builder, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidArgument, opts.compression)
	}

	b := &Builder{opts: opts, byName: make(map[string]*fieldBuilder, len(fields))}
	for _, name := range fields {
		if name == "" || len(name) > 1<<16-1 {
			return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidArgument, name)
		}
		if _, ok := b.byName[name]; ok {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidArgument, name)
		}
		fb := &fieldBuilder{name: name, ids: make(map[string]int32)}
		b.fields = append(b.fields, fb)
		b.byName[name] = fb
	}
	return b, nil
}

// NumDocs returns the number of documents added so far.
func (b *Builder) NumDocs() int { return b.docs }

// AddDocument adds a document and returns its segment-local doc id.
// Fields missing from doc have length 0. A value with increment 0 shares
// the previous position and is not stored; an increment above 1 leaves
// positions without a value, which read back as terms.NoTerm.
func (b *Builder) AddDocument(doc map[string]Tokens) (int, error) {
	for name := range doc {
		if _, ok := b.byName[name]; !ok {
			return -1, fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, name)
		}
	}

	resolved := make([][]int32, len(b.fields))
	for i, fb := range b.fields {
		ids, err := fb.resolve(doc[fb.name])
		if err != nil {
			return -1, fmt.Errorf("field %q: %w", fb.name, err)
		}
		resolved[i] = ids
	}
	for i, fb := range b.fields {
		fb.docs = append(fb.docs, resolved[i])
	}

	b.docs++
	return b.docs - 1, nil
}

func (fb *fieldBuilder) id(term string) int32 {
	if id, ok := fb.ids[term]; ok {
		return id
	}
	id := int32(len(fb.terms))
	fb.ids[term] = id
	fb.terms = append(fb.terms, term)
	return id
}

func (fb *fieldBuilder) resolve(t Tokens) ([]int32, error) {
	if t.Increments == nil {
		ids := make([]int32, len(t.Values))
		for i, v := range t.Values {
			ids[i] = fb.id(v)
		}
		return ids, nil
	}

	if len(t.Increments) != len(t.Values) {
		return nil, fmt.Errorf("%w: %d values but %d position increments", ErrInvalidArgument, len(t.Values), len(t.Increments))
	}
	total := 0
	for _, inc := range t.Increments {
		if inc < 0 {
			return nil, fmt.Errorf("%w: negative position increment %d", ErrInvalidArgument, inc)
		}
		total += inc
	}

	ids := make([]int32, 0, total)
	for i, v := range t.Values {
		inc := t.Increments[i]
		if inc == 0 {
			continue
		}
		for range inc - 1 {
			ids = append(ids, terms.NoTerm)
		}
		ids = append(ids, fb.id(v))
	}
	return ids, nil
}

// Encode returns the segment file.
func (b *Builder) Encode() ([]byte, error) {
	h := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		NumDocs:     uint32(b.docs),
		NumFields:   uint32(len(b.fields)),
		Compression: b.opts.compression,
	}

	buf := make([]byte, HeaderSize)
	entries := make([]fieldEntry, 0, len(b.fields))
	for _, fb := range b.fields {
		var (
			e   fieldEntry
			err error
		)
		buf, e, err = fb.encode(buf, b.docs, b.opts)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fb.name, err)
		}
		entries = append(entries, e)
	}

	h.FieldTableOffset = uint64(len(buf))
	for i := range entries {
		buf = entries[i].appendTo(buf)
	}
	copy(buf, h.Encode())

	return binary.LittleEndian.AppendUint32(buf, hash.CRC32C(buf)), nil
}

// Write encodes the segment and stores it in store under name.
func (b *Builder) Write(ctx context.Context, store blobstore.BlobStore, name string) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = blobstore.Abort(w)
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	b.opts.logger.Debug("segment written",
		"name", name,
		"docs", b.docs,
		"fields", len(b.fields),
		"bytes", len(data),
	)
	return nil
}

func (fb *fieldBuilder) encode(buf []byte, numDocs int, opts options) ([]byte, fieldEntry, error) {
	n := len(fb.terms)
	e := fieldEntry{Name: fb.name, NumTerms: uint32(n)}

	// Local ids follow the byte order of the terms.
	byBytes := make([]int32, n)
	for i := range byBytes {
		byBytes[i] = int32(i)
	}
	sort.Slice(byBytes, func(i, j int) bool { return fb.terms[byBytes[i]] < fb.terms[byBytes[j]] })

	local := make([]int32, n)
	sorted := make([]string, n)
	for l, id := range byBytes {
		local[id] = int32(l)
		sorted[l] = fb.terms[id]
	}

	// Term blocks.
	var refs []blockRef
	for first := 0; first < n; {
		last := first
		size := 0
		for last < n && (last == first || size+len(sorted[last])+4 <= opts.termBlockSize) {
			size += len(sorted[last]) + 4
			last++
		}
		stored, err := compressBlock(encodeTermBlock(sorted[first:last]), opts.compression)
		if err != nil {
			return nil, e, err
		}
		refs = append(refs, blockRef{first: int32(first), offset: uint64(len(buf)), length: uint32(len(stored))})
		buf = append(buf, stored...)
		first = last
	}

	e.NumBlocks = uint32(len(refs))
	e.BlockIndexOffset = uint64(len(buf))
	for _, r := range refs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r.first))
		buf = binary.LittleEndian.AppendUint64(buf, r.offset)
		buf = binary.LittleEndian.AppendUint32(buf, r.length)
	}

	// Order arrays: id -> sensitive position, sensitive order,
	// id -> insensitive position, insensitive order.
	e.OrdersOffset = uint64(len(buf))
	for _, c := range []*collation.Collator{opts.collators.Sensitive(), opts.collators.Insensitive()} {
		keys := make([][]byte, n)
		for i, t := range sorted {
			keys[i] = c.Key(t)
		}
		order, positions := terms.SortOrder(keys)
		buf = appendInt32s(buf, positions)
		buf = appendInt32s(buf, order)
	}

	// Tokens and the doc index.
	e.TokensOffset = uint64(len(buf))
	records := make([]byte, 0, numDocs*docRecordSize)
	for _, ids := range fb.docs {
		mapped := slices.Clone(ids)
		for i, id := range mapped {
			if id != terms.NoTerm {
				mapped[i] = local[id]
			}
		}
		codec, param, data := encodeTokens(mapped)

		records = binary.LittleEndian.AppendUint64(records, uint64(len(buf))-e.TokensOffset)
		records = binary.LittleEndian.AppendUint32(records, uint32(len(mapped)))
		records = append(records, byte(codec), param)
		buf = append(buf, data...)
	}
	e.TokensLength = uint64(len(buf)) - e.TokensOffset

	e.DocIndexOffset = uint64(len(buf))
	buf = append(buf, records...)
	return buf, e, nil
}

// Uncompressed term block: [count uint32][count+1 end offsets uint32][bytes].
func encodeTermBlock(ts []string) []byte {
	size := 4 + 4*(len(ts)+1)
	for _, t := range ts {
		size += len(t)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ts)))
	var off uint32
	buf = binary.LittleEndian.AppendUint32(buf, off)
	for _, t := range ts {
		off += uint32(len(t))
		buf = binary.LittleEndian.AppendUint32(buf, off)
	}
	for _, t := range ts {
		buf = append(buf, t...)
	}
	return buf
}

func appendInt32s(buf []byte, vs []int32) []byte {
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}
