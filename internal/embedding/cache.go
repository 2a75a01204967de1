package embedding

import (
	"container/list"
	"sync"
)

// EmbeddingCache is a bounded LRU of embeddings keyed by content hash. Vectors are copied
// on the way in and out so callers may modify what they get.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	hits     int64
	misses   int64
}

type cachedVector struct {
	key string
	vec []float32
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// NewEmbeddingCache returns a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: max(capacity, 1),
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the vector stored under key.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return clone(el.Value.(*cachedVector).vec), true
}

// Set stores vec under key and evicts the least recently used vector when full.
func (c *EmbeddingCache) Set(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cachedVector).vec = clone(vec)
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cachedVector{key: key, vec: clone(vec)})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cachedVector).key)
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns entry and hit counts.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
