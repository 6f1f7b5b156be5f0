package segment

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hupe1980/forwardindex/blobstore"
	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/cache"
	"github.com/hupe1980/forwardindex/internal/hash"
	"github.com/hupe1980/forwardindex/internal/span"
	"github.com/hupe1980/forwardindex/terms"
)

// Reader gives access to one segment file. It is safe for concurrent use.
type Reader struct {
	name   string
	opts   options
	header *FileHeader
	data   []byte
	blob   blobstore.Blob // kept open while data is a mapping of it
	fields map[string]*Field
	names  []string
	closed atomic.Bool
}

// Open reads the segment file name from store. A mappable blob is used in
// place; other blobs are read once, paced by the resource controller.
func Open(ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (*Reader, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", name, err)
	}

	var data []byte
	keep := false
	if m, ok := blob.(blobstore.Mappable); ok {
		if data, err = m.Bytes(); err == nil {
			keep = true
		}
	}
	if !keep {
		data, err = opts.rc.ReadAll(ctx, blob, blob.Size())
		_ = blob.Close()
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", name, err)
		}
		blob = nil
	}

	r, err := newReader(name, data, opts)
	if err != nil {
		if blob != nil {
			_ = blob.Close()
		}
		return nil, err
	}
	r.blob = blob

	opts.logger.Debug("segment opened",
		"name", name,
		"docs", r.NumDocs(),
		"fields", len(r.names),
		"mapped", keep,
	)
	return r, nil
}

// NewReader decodes a segment file held in memory.
func NewReader(name string, data []byte, optFns ...Option) (*Reader, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newReader(name, data, opts)
}

func newReader(name string, data []byte, opts options) (*Reader, error) {
	fail := func(err error) (*Reader, error) {
		return nil, fmt.Errorf("segment %s: %w", name, err)
	}

	if len(data) < HeaderSize+footerSize {
		return fail(fmt.Errorf("%w: file too small", ErrFormat))
	}
	body := data[:len(data)-footerSize]
	if hash.CRC32C(body) != binary.LittleEndian.Uint32(data[len(body):]) {
		return fail(ErrChecksum)
	}

	h, err := DecodeHeader(body)
	if err != nil {
		return fail(err)
	}
	if h.FieldTableOffset < HeaderSize || h.FieldTableOffset > uint64(len(body)) {
		return fail(fmt.Errorf("%w: field table offset %d", ErrFormat, h.FieldTableOffset))
	}

	r := &Reader{
		name:   name,
		opts:   opts,
		header: h,
		data:   body,
		fields: make(map[string]*Field, h.NumFields),
	}

	table := body[h.FieldTableOffset:]
	for range h.NumFields {
		e, n, err := decodeFieldEntry(table)
		if err != nil {
			return fail(err)
		}
		table = table[n:]

		f, err := r.newField(e)
		if err != nil {
			return fail(fmt.Errorf("field %q: %w", e.Name, err))
		}
		if _, dup := r.fields[e.Name]; dup {
			return fail(fmt.Errorf("%w: duplicate field %q", ErrFormat, e.Name))
		}
		r.fields[e.Name] = f
		r.names = append(r.names, e.Name)
	}
	if len(table) != 0 {
		return fail(fmt.Errorf("%w: %d trailing bytes after the field table", ErrFormat, len(table)))
	}
	return r, nil
}

// section returns body[off:off+size] or an error if it is out of range.
func (r *Reader) section(off, size uint64) ([]byte, error) {
	if off > uint64(len(r.data)) || size > uint64(len(r.data))-off {
		return nil, fmt.Errorf("%w: section [%d, +%d) beyond end of file", ErrFormat, off, size)
	}
	return r.data[off : off+size], nil
}

func (r *Reader) newField(e fieldEntry) (*Field, error) {
	n := uint64(e.NumTerms)
	docs := uint64(r.header.NumDocs)

	f := &Field{r: r, name: e.Name, numTerms: int(e.NumTerms)}

	index, err := r.section(e.BlockIndexOffset, uint64(e.NumBlocks)*blockRefSize)
	if err != nil {
		return nil, err
	}
	f.blocks = make([]blockRef, e.NumBlocks)
	for i := range f.blocks {
		p := index[i*blockRefSize:]
		b := blockRef{
			first:  int32(binary.LittleEndian.Uint32(p[0:])),
			offset: binary.LittleEndian.Uint64(p[4:]),
			length: binary.LittleEndian.Uint32(p[12:]),
		}
		if _, err := r.section(b.offset, uint64(b.length)); err != nil {
			return nil, err
		}
		if b.first < 0 || uint64(b.first) >= n || (i > 0 && b.first <= f.blocks[i-1].first) || (i == 0 && b.first != 0) {
			return nil, fmt.Errorf("%w: block %d starts at term %d", ErrFormat, i, b.first)
		}
		f.blocks[i] = b
	}
	if n > 0 && len(f.blocks) == 0 {
		return nil, fmt.Errorf("%w: %d terms but no term blocks", ErrFormat, n)
	}

	orders, err := r.section(e.OrdersOffset, 4*4*n)
	if err != nil {
		return nil, err
	}
	f.sensPos = orders[0 : 4*n]
	f.sensOrder = orders[4*n : 8*n]
	f.insPos = orders[8*n : 12*n]
	f.insOrder = orders[12*n : 16*n]
	for _, a := range [][]byte{f.sensPos, f.sensOrder, f.insPos, f.insOrder} {
		for i := uint64(0); i < n; i++ {
			if v := binary.LittleEndian.Uint32(a[4*i:]); uint64(v) >= n {
				return nil, fmt.Errorf("%w: term order value %d out of range", ErrFormat, v)
			}
		}
	}

	if f.tokens, err = r.section(e.TokensOffset, e.TokensLength); err != nil {
		return nil, err
	}
	if f.docIndex, err = r.section(e.DocIndexOffset, docs*docRecordSize); err != nil {
		return nil, err
	}
	for doc := range int(docs) {
		rec := f.record(doc)
		size, err := tokensSize(rec.codec, rec.param, rec.length)
		if err != nil {
			return nil, err
		}
		if rec.offset > uint64(len(f.tokens)) || uint64(size) > uint64(len(f.tokens))-rec.offset {
			return nil, fmt.Errorf("%w: tokens of document %d beyond the tokens section", ErrFormat, doc)
		}
		check := rec.length
		if rec.codec == CodecAllTheSame {
			check = min(check, 1)
		}
		for _, id := range decodeTokens(rec.codec, rec.param, f.tokens[rec.offset:], 0, check) {
			if id < terms.NoTerm || int(id) >= f.numTerms {
				return nil, fmt.Errorf("%w: document %d holds term %d of %d", ErrFormat, doc, id, f.numTerms)
			}
		}
	}
	return f, nil
}

// Name returns the blob name of the segment.
func (r *Reader) Name() string { return r.name }

// NumDocs returns the number of documents in the segment.
func (r *Reader) NumDocs() int { return int(r.header.NumDocs) }

// Fields returns the field names in file order.
func (r *Reader) Fields() []string { return append([]string(nil), r.names...) }

// Field returns the named field. A segment written for an index holds
// every forward-indexed field of it, so a missing field is a format error.
func (r *Reader) Field(name string) (*Field, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	f, ok := r.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: segment %s has no forward index for field %q", ErrFormat, r.name, name)
	}
	return f, nil
}

// Close releases the blob. Cached term blocks of the segment are dropped.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.opts.cache != nil {
		r.opts.cache.DropSegment(r.name)
	}
	if r.blob != nil {
		return r.blob.Close()
	}
	return nil
}

type blockRef struct {
	first  int32
	offset uint64
	length uint32
}

type docRecord struct {
	offset uint64
	length int
	codec  Codec
	param  uint8
}

// Field is the forward index of one field in one segment.
type Field struct {
	r        *Reader
	name     string
	numTerms int
	blocks   []blockRef

	sensPos, sensOrder []byte
	insPos, insOrder   []byte

	tokens   []byte
	docIndex []byte
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// NumTerms returns the number of distinct terms.
func (f *Field) NumTerms() int { return f.numTerms }

// NumDocs returns the number of documents of the segment.
func (f *Field) NumDocs() int { return f.r.NumDocs() }

func (f *Field) record(doc int) docRecord {
	p := f.docIndex[doc*docRecordSize:]
	return docRecord{
		offset: binary.LittleEndian.Uint64(p[0:]),
		length: int(binary.LittleEndian.Uint32(p[8:])),
		codec:  Codec(p[12]),
		param:  p[13],
	}
}

// DocLength returns the number of positions of doc.
func (f *Field) DocLength(doc int) (int, error) {
	if f.r.closed.Load() {
		return 0, ErrClosed
	}
	if err := span.CheckID(doc, f.NumDocs()); err != nil {
		return 0, err
	}
	return f.record(doc).length, nil
}

// RetrieveParts returns the local term ids in each [starts[i], ends[i])
// range of doc. Positions without a value hold terms.NoTerm.
func (f *Field) RetrieveParts(doc int, starts, ends []int) ([][]int32, error) {
	if f.r.closed.Load() {
		return nil, ErrClosed
	}
	if err := span.CheckID(doc, f.NumDocs()); err != nil {
		return nil, err
	}
	if err := span.CheckPairs(starts, ends); err != nil {
		return nil, err
	}

	rec := f.record(doc)
	data := f.tokens[rec.offset:]
	parts := make([][]int32, len(starts))
	for i := range starts {
		start, end, err := span.Resolve(rec.length, starts[i], ends[i])
		if err != nil {
			return nil, err
		}
		parts[i] = decodeTokens(rec.codec, rec.param, data, start, end)
	}
	return parts, nil
}

// SortPosition returns the local sort position of id, or -1 if id is not
// a term of the field or s is not supported.
func (f *Field) SortPosition(id int, s collation.Sensitivity) int {
	if id < 0 || id >= f.numTerms {
		return -1
	}
	switch s {
	case collation.Sensitive:
		return int(binary.LittleEndian.Uint32(f.sensPos[4*id:]))
	case collation.Insensitive:
		return int(binary.LittleEndian.Uint32(f.insPos[4*id:]))
	default:
		return -1
	}
}

// Term returns the string of local term id.
func (f *Field) Term(id int) (string, error) {
	if id < 0 || id >= f.numTerms {
		return "", fmt.Errorf("%w: term %d of %d", ErrInvalidArgument, id, f.numTerms)
	}
	b := sort.Search(len(f.blocks), func(i int) bool { return int(f.blocks[i].first) > id }) - 1
	block, err := f.block(b)
	if err != nil {
		return "", err
	}
	return termInBlock(block, id-int(f.blocks[b].first))
}

// block returns the decompressed term block i, through the cache if one
// is configured.
func (f *Field) block(i int) ([]byte, error) {
	key := cache.Key{Segment: f.r.name, Field: f.name, Block: i}
	c := f.r.opts.cache
	if c != nil {
		if b, ok := c.Get(key); ok {
			return b, nil
		}
	}

	ref := f.blocks[i]
	raw := f.r.data[ref.offset : ref.offset+uint64(ref.length)]
	b, err := decompressBlock(raw, f.r.header.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: segment %s field %q block %d: %v", ErrFormat, f.r.name, f.name, i, err)
	}
	if err := validateTermBlock(b); err != nil {
		return nil, fmt.Errorf("segment %s field %q block %d: %w", f.r.name, f.name, i, err)
	}
	if c != nil {
		c.Set(key, b)
	}
	return b, nil
}

func validateTermBlock(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: term block too small", ErrFormat)
	}
	count := uint64(binary.LittleEndian.Uint32(b))
	head := 4 + 4*(count+1)
	if head > uint64(len(b)) {
		return fmt.Errorf("%w: term block offsets truncated", ErrFormat)
	}
	prev := uint32(0)
	for i := uint64(0); i <= count; i++ {
		off := binary.LittleEndian.Uint32(b[4+4*i:])
		if off < prev || head+uint64(off) > uint64(len(b)) {
			return fmt.Errorf("%w: term block offset %d out of range", ErrFormat, off)
		}
		prev = off
	}
	return nil
}

func termInBlock(b []byte, i int) (string, error) {
	count := int(binary.LittleEndian.Uint32(b))
	if i < 0 || i >= count {
		return "", fmt.Errorf("%w: term %d of block with %d terms", ErrFormat, i, count)
	}
	head := 4 + 4*(count+1)
	from := binary.LittleEndian.Uint32(b[4+4*i:])
	to := binary.LittleEndian.Uint32(b[8+4*i:])
	return string(b[head+int(from) : head+int(to)]), nil
}
