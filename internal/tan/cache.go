package tan

import (
	"time"

	"github.com/bluele/gcache"
)

// Cache is an LRU cache with per-entry expiry for API responses.
type Cache struct {
	store gcache.Cache
}

// NewCache creates a cache holding up to size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		store: gcache.New(size).
			LRU().
			Expiration(ttl).
			Build(),
	}
}

// Get retrieves a cached value if it exists and hasn't expired.
func (c *Cache) Get(key string) (any, bool) {
	v, err := c.store.Get(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.store.Len(true)
}
