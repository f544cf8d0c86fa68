package flight

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded LRU cache of flight statuses with per-entry TTL.
// Expired entries are treated as misses and evicted lazily on access.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

type cacheEntry struct {
	key      string
	status   *Status
	storedAt time.Time
}

// NewCache builds a cache holding at most capacity entries, each fresh
// for ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached status for key if present and fresh.
func (c *Cache) Get(key string) (*Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.status, true
}

// Put stores a status under key, evicting the least recently used entry
// when full.
func (c *Cache) Put(key string, status *Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.status = status
		entry.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:      key,
		status:   status,
		storedAt: c.now(),
	})
}

// Len returns the number of entries currently held, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
