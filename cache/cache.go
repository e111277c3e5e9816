// Package cache provides the bounded in-memory cache used for route-keyed
// page hosts and the string caches (memory or Redis) used for fetched page
// models.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Policy selects which entry is evicted when the cache is full.
type Policy int

const (
	// InsertionOrder evicts the entry that was inserted first. Reads do not
	// change the order.
	InsertionOrder Policy = iota
	// LeastRecentlyUsed evicts the entry that was read or written least
	// recently.
	LeastRecentlyUsed
)

// Config configures a Bounded cache.
type Config struct {
	// MaxSize is the maximum number of entries.
	MaxSize int
	// TTL is the default lifetime of an entry. Zero means entries never expire.
	TTL time.Duration
	// Policy is the eviction policy.
	Policy Policy
}

// DefaultConfig returns a ten-entry insertion-order cache without expiry.
func DefaultConfig() Config {
	return Config{MaxSize: 10, Policy: InsertionOrder}
}

// Bounded is a thread-safe cache with a fixed capacity. When an insert would
// exceed the capacity the entry chosen by the policy is evicted and handed to
// the eviction callback.
type Bounded[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
	ttl     time.Duration
	policy  Policy
	onEvict func(key string, value V)
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewBounded creates a cache. onEvict may be nil; it is called outside the
// cache lock for entries removed by capacity eviction or expiry.
func NewBounded[V any](cfg Config, onEvict func(key string, value V)) *Bounded[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	return &Bounded[V]{
		items:   make(map[string]*list.Element, cfg.MaxSize),
		order:   list.New(),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		policy:  cfg.Policy,
		onEvict: onEvict,
		now:     time.Now,
	}
}

// Get returns the value stored under key.
func (c *Bounded[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	v, ok, expired := c.getLocked(key)
	c.mu.Unlock()

	c.notify(expired)
	return v, ok
}

func (c *Bounded[V]) getLocked(key string) (V, bool, []*entry[V]) {
	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false, nil
	}
	e := elem.Value.(*entry[V])
	if c.expired(e) {
		c.removeLocked(elem)
		c.misses++
		return zero, false, []*entry[V]{e}
	}
	if c.policy == LeastRecentlyUsed {
		c.order.MoveToFront(elem)
	}
	c.hits++
	return e.value, true, nil
}

// Set stores value under key with the default TTL.
func (c *Bounded[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key. A zero ttl never expires.
func (c *Bounded[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	evicted := c.setLocked(key, value, ttl)
	c.mu.Unlock()

	c.notify(evicted)
}

func (c *Bounded[V]) setLocked(key string, value V, ttl time.Duration) []*entry[V] {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		if c.policy == LeastRecentlyUsed {
			c.order.MoveToFront(elem)
		}
		return nil
	}

	var evicted []*entry[V]
	for c.order.Len() >= c.maxSize {
		back := c.order.Back()
		c.removeLocked(back)
		c.evictions++
		evicted = append(evicted, back.Value.(*entry[V]))
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	return evicted
}

// GetOrSet returns the value under key, or creates it with create and stores
// it. create runs with the cache locked and must not call back into it.
func (c *Bounded[V]) GetOrSet(key string, create func() (V, error)) (V, error) {
	c.mu.Lock()
	v, ok, expired := c.getLocked(key)
	if ok {
		c.mu.Unlock()
		c.notify(expired)
		return v, nil
	}
	v, err := create()
	if err != nil {
		c.mu.Unlock()
		c.notify(expired)
		var zero V
		return zero, err
	}
	evicted := c.setLocked(key, v, c.ttl)
	c.mu.Unlock()

	c.notify(append(expired, evicted...))
	return v, nil
}

// Delete removes key without invoking the eviction callback.
func (c *Bounded[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// Clear removes every entry without invoking the eviction callback.
func (c *Bounded[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
}

// Keys returns the keys from oldest to newest in eviction order.
func (c *Bounded[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for e := c.order.Back(); e != nil; e = e.Prev() {
		keys = append(keys, e.Value.(*entry[V]).key)
	}
	return keys
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *Bounded[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// PurgeExpired removes expired entries and returns how many were removed.
func (c *Bounded[V]) PurgeExpired() int {
	c.mu.Lock()
	var purged []*entry[V]
	var next *list.Element
	for e := c.order.Front(); e != nil; e = next {
		next = e.Next()
		if ent := e.Value.(*entry[V]); c.expired(ent) {
			c.removeLocked(e)
			purged = append(purged, ent)
		}
	}
	c.mu.Unlock()

	c.notify(purged)
	return len(purged)
}

// Stats holds cache statistics.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns cache statistics.
func (c *Bounded[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.order.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Bounded[V]) expired(e *entry[V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *Bounded[V]) removeLocked(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[V]).key)
	c.order.Remove(elem)
}

func (c *Bounded[V]) notify(entries []*entry[V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}
