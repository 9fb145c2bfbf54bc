package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// cacheEntry stores the expiry and list element for a held key.
type cacheEntry struct {
	expires time.Time
	element *list.Element
}

// Cache is the in-memory Locker: a size-bounded set of held keys, each with
// its own expiry. Insertion order is kept in a linked list for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	held    map[string]*cacheEntry
	order   *list.List // oldest at front
	maxSize int
	done    chan struct{}
	closed  bool
	now     func() time.Time
}

// New creates a cache holding at most maxSize keys. A background goroutine
// periodically drops expired keys.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100_000
	}
	c := &Cache{
		held:    make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.cleanup()
	return c
}

// Acquire atomically checks and marks key.
func (c *Cache) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.held[key]; ok {
		if now.Before(entry.expires) {
			return false, nil
		}
		c.order.Remove(entry.element)
		delete(c.held, key)
	}

	if len(c.held) >= c.maxSize {
		c.evictOldest()
	}
	elem := c.order.PushBack(key)
	c.held[key] = &cacheEntry{expires: now.Add(ttl), element: elem}
	return true, nil
}

// Release drops key.
func (c *Cache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.held[key]; ok {
		c.order.Remove(entry.element)
		delete(c.held, key)
	}
	return nil
}

// Len returns the number of held keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.held, key)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.held {
		if !now.Before(entry.expires) {
			c.order.Remove(entry.element)
			delete(c.held, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
