package blobstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps segment files in process memory. It is meant for tests
// and is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memBlob)}
}

func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	b, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Stored slices are replaced, never written to, so handles share them.
	return b, nil
}

// Create buffers the write; the blob appears on Close.
func (m *MemoryStore) Create(_ context.Context, name string) (WritableBlob, error) {
	return &memWriter{store: m, name: name}, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	m.blobs[name] = memBlob(bytes.Clone(data))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// memBlob is an immutable in-memory blob. It is Mappable, so segment
// readers use it without copying.
type memBlob []byte

func (b memBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b memBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	return readRange(b, off, length)
}

func (b memBlob) Size() int64            { return int64(len(b)) }
func (b memBlob) Bytes() ([]byte, error) { return b, nil }
func (b memBlob) Close() error           { return nil }

type memWriter struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
	done  bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Sync() error { return nil }

func (w *memWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.store.Put(context.Background(), w.name, w.buf.Bytes())
}

// Abort discards the buffered data.
func (w *memWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
