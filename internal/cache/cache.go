// Package cache keeps search responses and cleaned pages between runs so
// re-asking a question does not repeat paid search calls and page fetches.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores search responses and extracted pages between runs.
// Implementations are safe for concurrent use by several sessions.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Namespaces keep search results and page text from colliding
const (
	NamespaceSearch = "search"
	NamespacePage   = "page"
)

const keyPrefix = "decisio:v1:"

// CacheKey generates a cache key for a value inside a namespace
func CacheKey(namespace, raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return keyPrefix + namespace + ":" + hex.EncodeToString(hash[:])
}

// splitKey returns the namespace and hash of a key made by CacheKey.
// Foreign keys land in the "misc" namespace.
func splitKey(key string) (namespace, name string) {
	rest := strings.TrimPrefix(key, keyPrefix)
	if ns, name, ok := strings.Cut(rest, ":"); ok && rest != key && ns != "" {
		return ns, name
	}
	return "misc", strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
}

// Stats counts lookups of a cache
type Stats struct {
	Hits   int64
	Misses int64
	Items  int
}

// New builds the cache described by the settings. Disabled caching
// returns nil, which every consumer treats as "no cache".
func New(enabled bool, dir string, ttl time.Duration) Cache {
	if !enabled {
		return nil
	}
	if dir == "" {
		return NewMemoryCache(ttl, 10*time.Minute)
	}
	return NewLayeredCache(ttl, dir, ttl)
}
