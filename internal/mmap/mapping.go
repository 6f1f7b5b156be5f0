package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a read-only memory-mapped file or file range.
type Mapping struct {
	view   []byte // the bytes requested by the caller
	raw    []byte // the bytes actually mapped (aligned)
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the whole file at path into memory.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return MapRange(f, 0, fi.Size())
}

// MapRange maps size bytes of f starting at offset. The file may be closed
// after MapRange returns; the mapping stays valid until Close.
func MapRange(f *os.File, offset, size int64) (*Mapping, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}
	if size < 0 || int64(int(size)) != size {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{}, nil
	}

	gran := int64(granularity())
	aligned := offset - offset%gran
	delta := int(offset - aligned)

	raw, unmap, err := osMap(f, aligned, delta+int(size))
	if err != nil {
		return nil, err
	}

	return &Mapping{
		view:  raw[delta : delta+int(size)],
		raw:   raw,
		unmap: unmap,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.raw != nil {
		return m.unmap(m.raw)
	}
	return nil
}

// Bytes returns the mapped bytes.
// The slice is valid only until Close is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.view
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.view)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.raw == nil {
		return nil
	}
	return osAdvise(m.raw, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.view)) {
		return 0, io.EOF
	}
	n = copy(p, m.view[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
