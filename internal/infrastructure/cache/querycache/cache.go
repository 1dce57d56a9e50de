package querycache

import (
	"container/list"
	"sync"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 1000
)

type entry struct {
	key        string
	value      domain.ProcessedQuery
	insertedAt time.Time
	element    *list.Element
}

// Cache is a mutex-guarded LRU of processed queries with a fixed TTL.
// Entries are replaced, never mutated in place.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits   uint64
	misses uint64
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries:  make(map[string]*entry, capacity),
		lru:      list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a live entry and marks it most recently used. Expired
// entries are dropped on access.
func (c *Cache) Get(key string) (domain.ProcessedQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return domain.ProcessedQuery{}, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.remove(e)
		c.misses++
		return domain.ProcessedQuery{}, false
	}
	c.lru.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

func (c *Cache) Set(key string, value domain.ProcessedQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
	}

	e := &entry{key: key, value: value, insertedAt: c.now()}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}

func (c *Cache) remove(e *entry) {
	c.lru.Remove(e.element)
	delete(c.entries, e.key)
}
