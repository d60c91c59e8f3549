package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is a process-local cache with per-entry expiry. Values are
// copied in and out so no two sessions share a buffer.
type MemoryCache struct {
	items  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a memory cache whose entries expire after
// defaultTTL unless Set passes its own ttl
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.items.Get(key)
	b, ok := val.([]byte)
	if !found || !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]byte(nil), b...), true
}

// Set stores a copy of value. A zero ttl uses the default expiry.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// setUntil stores value so it expires at the given time
func (c *MemoryCache) setUntil(key string, value []byte, expiresAt time.Time) {
	if remaining := expiresAt.Sub(timeNow()); remaining > 0 {
		c.items.Set(key, append([]byte(nil), value...), remaining)
	}
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Stats reports hit and miss counts since creation
func (c *MemoryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Items: c.items.ItemCount()}
}
