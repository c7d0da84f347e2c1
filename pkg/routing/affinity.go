package routing

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// affinityEntry records the channel that last served an affinity key.
type affinityEntry struct {
	channelID string
	expiresAt time.Time
}

// AffinityCache remembers which channel served a (tenant, affinity key,
// model) triple. It is a bounded LRU with per-entry expiry; expired
// entries are dropped lazily on lookup.
type AffinityCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewAffinityCache creates a cache holding at most size keys for ttl each.
func NewAffinityCache(size int, ttl time.Duration) (*AffinityCache, error) {
	if size <= 0 {
		size = DefaultAffinitySize
	}
	if ttl <= 0 {
		ttl = DefaultAffinityTTL
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &AffinityCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

func affinityKey(tenantID, key, model string) string {
	return tenantID + "\x00" + key + "\x00" + model
}

// Lookup returns the remembered channel for the triple.
func (c *AffinityCache) Lookup(tenantID, key, model string) (string, bool) {
	k := affinityKey(tenantID, key, model)
	val, ok := c.cache.Get(k)
	if !ok {
		return "", false
	}
	entry := val.(affinityEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Remove(k)
		return "", false
	}
	return entry.channelID, true
}

// Remember records channelID as the preferred channel for the triple and
// refreshes its expiry.
func (c *AffinityCache) Remember(tenantID, key, model, channelID string) {
	c.cache.Add(affinityKey(tenantID, key, model), affinityEntry{
		channelID: channelID,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Forget drops the triple.
func (c *AffinityCache) Forget(tenantID, key, model string) {
	c.cache.Remove(affinityKey(tenantID, key, model))
}

// Len returns the number of remembered keys, including expired ones not
// yet evicted.
func (c *AffinityCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *AffinityCache) Purge() {
	c.cache.Purge()
}
