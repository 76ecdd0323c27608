// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTLCache is a thread-safe cache with per-entry expiration and an
// optional entry limit. Keys are strings (document fingerprints in
// practice); when the limit is reached the oldest entry is evicted.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	data    map[string]entry[V]
	ttl     time.Duration
	max     int
	now     func() time.Time
	group   singleflight.Group
	seq     uint64
	hits    int64
	misses  int64
	evicted int64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	seq       uint64
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// New creates a new TTLCache. A zero ttl disables expiration and a
// non-positive max disables the entry limit.
func New[V any](ttl time.Duration, max int) *TTLCache[V] {
	return &TTLCache[V]{
		data: make(map[string]entry[V]),
		ttl:  ttl,
		max:  max,
		now:  time.Now,
	}
}

// Get retrieves a live value from the cache.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if ok && c.expiredLocked(e) {
		delete(c.data, key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value, evicting the oldest entry if the cache is full.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.max > 0 && len(c.data) >= c.max {
		c.evictLocked()
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.seq++
	c.data[key] = entry[V]{value: value, expiresAt: expires, seq: c.seq}
}

// GetOrLoad returns the cached value for key or calls load once,
// sharing the result with concurrent callers for the same key. Errors
// are returned to every waiting caller and never cached.
func (c *TTLCache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete removes a key.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Invalidate clears all cached data.
func (c *TTLCache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry[V])
}

// Len returns the number of entries, including any that expired but
// have not been touched since.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:   len(c.data),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evicted,
	}
}

// expiredLocked MUST be called with at least a read lock held.
func (c *TTLCache[V]) expiredLocked(e entry[V]) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

// evictLocked drops expired entries, then the oldest insert if the
// cache is still full. MUST be called with the write lock held.
func (c *TTLCache[V]) evictLocked() {
	for k, e := range c.data {
		if c.expiredLocked(e) {
			delete(c.data, k)
			c.evicted++
		}
	}
	if len(c.data) < c.max {
		return
	}

	var victim string
	var oldest uint64
	first := true
	for k, e := range c.data {
		if first || e.seq < oldest {
			victim, oldest, first = k, e.seq, false
		}
	}
	delete(c.data, victim)
	c.evicted++
}
