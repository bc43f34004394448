package embedding

import (
	"container/list"
	"sync"
)

// EmbeddingCache is an LRU cache of embeddings keyed by chunk or query text. Vectors
// are copied on the way in and out, so callers may modify what they hold.
type EmbeddingCache struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	text      string
	embedding []float32
}

// NewEmbeddingCache creates a cache holding at most capacity embeddings.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached embedding of text and marks it recently used.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return cloneVector(elem.Value.(*cacheEntry).embedding), true
}

// Set stores the embedding of text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, embedding []float32) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[text]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).embedding = cloneVector(embedding)
		return
	}
	c.items[text] = c.order.PushFront(&cacheEntry{text: text, embedding: cloneVector(embedding)})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).text)
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
