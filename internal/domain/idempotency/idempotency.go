// Package idempotency remembers client-supplied request keys so that a
// retried write is applied at most once.
package idempotency

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// defaultMaxSize bounds the cache when no option is given.
const defaultMaxSize = 10_000

// Cache records request keys and the id of the resource each one produced.
type Cache interface {
	// Reserve atomically claims key. When key was already claimed it returns
	// the stored result (empty while the first request is still in flight)
	// and true.
	Reserve(ctx context.Context, key string) (string, bool)

	// Complete stores the result produced for a reserved key.
	Complete(ctx context.Context, key, result string)

	// Release forgets key so the request may be retried. Used when the write
	// behind a reservation failed.
	Release(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key    string
	result string
}

// memoryCache implements Cache with a map and an insertion-ordered list.
// The front of the list is the oldest key and is evicted first.
type memoryCache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewMemoryCache creates an in-memory Cache.
func NewMemoryCache(opts ...Option) Cache {
	c := &memoryCache{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index = make(map[string]*list.Element)
	c.order = list.New()
	return c
}

func (c *memoryCache) Reserve(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		return el.Value.(*entry).result, true
	}
	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.index[key] = c.order.PushBack(&entry{key: key})
	c.size.Add(1)
	return "", false
}

func (c *memoryCache) Complete(_ context.Context, key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*entry).result = result
	}
}

func (c *memoryCache) Release(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
		c.size.Add(-1)
	}
}

// evictOldest must be called with c.mu held.
func (c *memoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.index, front.Value.(*entry).key)
	c.size.Add(-1)
}

func (c *memoryCache) Size() int64 {
	return c.size.Load()
}
