// Package cache provides a generic in-memory TTL cache used by the event
// source adapters to bound external call volume. Entries expire by TTL only;
// expired entries are pruned lazily when the cache grows past its size
// threshold (no background sweep). Concurrent misses for the same key may
// each recompute the value — recomputation is idempotent, so the stampede is
// tolerated rather than deduplicated.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe map with per-cache TTL and lazy size-bound pruning.
type Cache[V any] struct {
	mu        sync.RWMutex
	entries   map[string]entry[V]
	ttl       time.Duration
	pruneSize int
	clock     clockwork.Clock
}

// New creates a cache whose entries live for ttl. Once the entry count
// exceeds pruneSize, the next Set sweeps out expired entries.
func New[V any](ttl time.Duration, pruneSize int, clock clockwork.Clock) *Cache[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[V]{
		entries:   make(map[string]entry[V]),
		ttl:       ttl,
		pruneSize: pruneSize,
		clock:     clock,
	}
}

// Get returns the cached value for key, or false when absent or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > c.pruneSize {
		c.pruneLocked()
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Len returns the number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) pruneLocked() {
	now := c.clock.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// CoordKey builds a cache key from coordinates rounded to 3 decimal places
// (~360ft at mid-latitudes) so near-duplicate queries share a cache line.
func CoordKey(prefix string, lat, lon float64) string {
	return fmt.Sprintf("%s:%.3f,%.3f", prefix, lat, lon)
}

// TimeKey appends a timestamp rounded to the nearest 5-minute interval to a
// base key, for time-sensitive lookups.
func TimeKey(base string, t time.Time) string {
	return fmt.Sprintf("%s@%d", base, t.Round(5*time.Minute).Unix())
}
