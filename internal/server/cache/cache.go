// Package cache memoizes rendered views for the HTTP mirror.
//
// Entries are keyed by the store version they were computed from, so a live
// merge or bulk load naturally misses the cache and stale views age out
// through the TTL.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache wraps go-cache with hit/miss accounting.
type Cache struct {
	store  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new cache with the given TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Key builds a cache key for a view of kind computed under filter at the
// given store version.
func Key(kind, filter string, version uint64) string {
	return fmt.Sprintf("%s:%s:%d", kind, filter, version)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Errors are not cached.
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in the cache with custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
type Stats struct {
	ItemCount int   `json:"item_count"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount: c.store.ItemCount(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}
}
