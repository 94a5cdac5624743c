package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRU is an in-process cache with a capacity bound and optional TTL.
type LRU struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
	counters
}

type lruEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// NewLRU creates an LRU holding at most capacity entries. ttl <= 0 disables expiry.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the value for key if present and not expired.
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.record(false)
		return nil, false
	}
	e := elem.Value.(*lruEntry)
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.lru.Remove(elem)
		delete(c.items, key)
		c.record(false)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.record(true)
	return e.value, true
}

// Set stores value for key, evicting the least recently used entry when full.
func (c *LRU) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		e := elem.Value.(*lruEntry)
		e.value = value
		e.expires = expires
		return
	}

	c.items[key] = c.lru.PushFront(&lruEntry{key: key, value: value, expires: expires})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

// Invalidate drops every entry.
func (c *LRU) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	return nil
}

// Stats reports counters and the current entry count.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	n := c.lru.Len()
	c.mu.Unlock()
	return Stats{Type: "memory", Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}

// Close is a no-op.
func (c *LRU) Close() error { return nil }
