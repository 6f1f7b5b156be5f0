package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/forwardindex/internal/resource"
)

var _ BlockCache = (*LRUBlockCache)(nil)

// LRUBlockCache is a BlockCache bounded in bytes. Blocks are evicted least
// recently used first and indexed per segment so a closing segment drops
// its blocks without scanning the others.
type LRUBlockCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	order     *list.List
	blocks    map[Key]*list.Element
	bySegment map[string]map[Key]struct{}
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type block struct {
	key  Key
	data []byte
}

// NewLRUBlockCache creates a cache holding at most capacity bytes. Memory
// is also reserved on rc, which may be nil.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity:  capacity,
		order:     list.New(),
		blocks:    make(map[Key]*list.Element),
		bySegment: make(map[string]map[Key]struct{}),
		rc:        rc,
	}
}

func (c *LRUBlockCache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.blocks[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(e)
	return e.Value.(*block).data, true
}

// Set caches b under key. Blocks larger than the capacity, or refused by
// the resource controller, are not cached.
func (c *LRUBlockCache) Set(key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.blocks[key]; ok {
		c.order.MoveToFront(e)
		return
	}
	n := int64(len(b))
	if n > c.capacity {
		return
	}
	for c.size+n > c.capacity && c.order.Len() > 0 {
		c.remove(c.order.Back())
	}
	if !c.rc.TryAcquireMemory(n) {
		return
	}

	c.blocks[key] = c.order.PushFront(&block{key: key, data: b})
	seg := c.bySegment[key.Segment]
	if seg == nil {
		seg = make(map[Key]struct{})
		c.bySegment[key.Segment] = seg
	}
	seg[key] = struct{}{}
	c.size += n
}

func (c *LRUBlockCache) DropSegment(segment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.bySegment[segment] {
		c.remove(c.blocks[key])
	}
}

// Stats returns hit and miss counts.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the bytes currently cached.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRUBlockCache) remove(e *list.Element) {
	b := c.order.Remove(e).(*block)
	delete(c.blocks, b.key)
	if seg := c.bySegment[b.key.Segment]; seg != nil {
		delete(seg, b.key)
		if len(seg) == 0 {
			delete(c.bySegment, b.key.Segment)
		}
	}
	n := int64(len(b.data))
	c.size -= n
	c.rc.ReleaseMemory(n)
}
