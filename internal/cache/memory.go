package cache

import (
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/islamcheck/internal/model"
)

// MemoryCache is an expiring in-process record cache. Records are copied on
// the way in and out so callers cannot mutate cached state.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a record from the cache
func (c *MemoryCache) Get(key string) (*model.ClaimRecord, bool) {
	if val, found := c.cache.Get(key); found {
		return clone(val.(*model.ClaimRecord)), true
	}
	return nil, false
}

// Set stores a record with the given TTL (0 = default TTL)
func (c *MemoryCache) Set(key string, record *model.ClaimRecord, ttl time.Duration) {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, clone(record), ttl)
}

// Delete removes a record from the cache
func (c *MemoryCache) Delete(key string) {
	c.cache.Delete(key)
}

// Clear removes all records from the cache
func (c *MemoryCache) Clear() {
	c.cache.Flush()
}

// Len returns the number of cached entries, including expired ones not yet
// cleaned up
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}

func clone(r *model.ClaimRecord) *model.ClaimRecord {
	cp := *r
	cp.Sources = slices.Clone(r.Sources)
	return &cp
}
