package cache

// Key identifies one decompressed term block of one field in one segment.
type Key struct {
	Segment string
	Field   string
	Block   int
}

// BlockCache caches decompressed term blocks. Returned slices are shared
// and must not be modified.
type BlockCache interface {
	Get(key Key) (b []byte, ok bool)
	// Set caches a block. The caller must not modify b afterwards.
	Set(key Key, b []byte)
	// DropSegment removes every block of a segment, e.g. when it is closed.
	DropSegment(segment string)
	Stats() (hits, misses int64)
}
