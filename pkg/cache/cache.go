// Package cache provides a typed, concurrency-safe LRU cache.
package cache

import (
	"sync"
)

// entry is an item in the doubly-linked recency list.
type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

// list is a doubly-linked list, most recently used at the head.
type list[K comparable, V any] struct {
	head *entry[K, V]
	tail *entry[K, V]
}

func (l *list[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (l *list[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

func (l *list[K, V]) moveToFront(e *entry[K, V]) {
	if e == l.head {
		return
	}
	l.unlink(e)
	l.pushFront(e)
}

// Options configures the LRU cache.
type Options[K comparable, V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted to make room.
	OnEvict func(key K, value V)
}

// Stats reports cache usage.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// LRU is an in-memory least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*entry[K, V]
	lru     list[K, V]
	maxSize int
	onEvict func(key K, value V)
	stats   Stats
}

// New creates a new LRU cache with the given options.
func New[K comparable, V any](opts Options[K, V]) *LRU[K, V] {
	return &LRU[K, V]{
		items:   make(map[K]*entry[K, V]),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		c.stats.MissCount++
		var zero V
		return zero, false
	}
	c.stats.HitCount++
	c.lru.moveToFront(e)
	return e.value, true
}

// Set stores a value, evicting the least recently used entries when the
// cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.items[key]; exists {
		e.value = value
		c.lru.moveToFront(e)
		return
	}
	e := &entry[K, V]{key: key, value: value}
	c.items[key] = e
	c.lru.pushFront(e)
	c.evictIfNeeded()
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Errors are not cached. Concurrent misses for the same
// key may call load more than once.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes a key from the cache.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(e)
	delete(c.items, key)
}

// Clear removes all entries. Statistics are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*entry[K, V])
	c.lru = list[K, V]{}
}

// Len returns the number of entries in the cache.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.items))
	for e := c.lru.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Stats returns the current cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Length = len(c.items)
	return s
}

func (c *LRU[K, V]) evictIfNeeded() {
	for c.maxSize > 0 && len(c.items) > c.maxSize {
		e := c.lru.tail
		if e == nil {
			return
		}
		c.lru.unlink(e)
		delete(c.items, e.key)
		c.stats.Evictions++
		if c.onEvict != nil {
			c.onEvict(e.key, e.value)
		}
	}
}
