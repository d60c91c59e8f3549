package cache

import "time"

// LayeredCache fronts a disk cache with an in-memory one. Disk hits are
// promoted with their remaining lifetime, not a fresh one.
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewLayeredCache creates a layered cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	entry, found := c.disk.load(c.disk.path(key))
	if !found {
		return nil, false
	}
	c.memory.setUntil(key, entry.Data, entry.ExpiresAt)
	return entry.Data, true
}

// Set writes through to both layers. A disk failure still leaves the
// value usable for the rest of the process.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	_ = c.memory.Set(key, value, ttl)
	return c.disk.Set(key, value, ttl)
}

func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}

// Disk returns the persistent layer
func (c *LayeredCache) Disk() *DiskCache {
	return c.disk
}

// Stats reports the lookups served by the memory layer
func (c *LayeredCache) Stats() Stats {
	return c.memory.Stats()
}
