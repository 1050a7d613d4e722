package registry

import (
	"sync"
	"time"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// cacheEntry pairs a classification with its expiry time.
type cacheEntry struct {
	class   model.PackageClass
	expires time.Time
}

// Cache is a concurrent, TTL-based cache of registry classifications. A
// positive and negative result share the same TTL, per the process-lifetime
// cache requirement; the TTL additionally lets a long multi-host scan
// re-validate a name rather than trusting a hours-old answer forever.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached classification for key, if present and unexpired.
func (c *Cache) Get(key string) (model.PackageClass, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return e.class, true
}

// Set stores class under key with the cache's TTL from now.
func (c *Cache) Set(key string, class model.PackageClass) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{class: class, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
