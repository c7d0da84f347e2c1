package secrets

import (
	"sync"
	"time"
)

// CacheConfig bounds the manager cache. A zero TTL disables caching.
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache holds resolved secrets until they expire. When full, the entry
// closest to expiry is evicted.
type Cache struct {
	cfg     CacheConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	return &Cache{cfg: cfg, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Get returns an unexpired value.
func (c *Cache) Get(name string) (string, bool) {
	if c.cfg.TTL <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, name)
		return "", false
	}
	return e.value, true
}

// Set stores value for the configured TTL.
func (c *Cache) Set(name, value string) {
	if c.cfg.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists && len(c.entries) >= c.cfg.MaxSize {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expiresAt.Before(oldestAt) {
				oldest, oldestAt = k, e.expiresAt
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[name] = cacheEntry{value: value, expiresAt: c.now().Add(c.cfg.TTL)}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
