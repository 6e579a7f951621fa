package search

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

type cacheKey struct {
	leaf string
	hash uint64
}

type cacheEntry struct {
	key   cacheKey
	query Query
	docs  *roaring.Bitmap
}

// QueryCache keeps the matching documents of cacheable queries per leaf as
// roaring bitmaps, evicting the least recently used entry when full. It only
// serves searches that do not need scores.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &QueryCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// Get returns the cached matches of q on a leaf. Entries whose hash collides
// with q but whose query is not equal to it are misses.
func (c *QueryCache) Get(leaf string, q Query) (*roaring.Bitmap, bool) {
	key := cacheKey{leaf: leaf, hash: q.Hash()}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok || !el.Value.(*cacheEntry).query.Equal(q) {
		c.misses.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*cacheEntry).docs, true
}

func (c *QueryCache) Put(leaf string, q Query, docs *roaring.Bitmap) {
	key := cacheKey{leaf: leaf, hash: q.Hash()}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value = &cacheEntry{key: key, query: q, docs: docs}
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, query: q, docs: docs})
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Clear drops every entry, typically after the leaves were reloaded.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[cacheKey]*list.Element)
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
