package scraper

import (
	"time"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CoverCache stores web cover results per normalised (title, author) key.
type CoverCache interface {
	Get(key string) ([]models.CoverCandidate, bool)
	Set(key string, covers []models.CoverCandidate)
	Evict(key string)
}

// LRUCache is a size-bounded CoverCache whose entries expire after ttl.
// Expired entries are dropped lazily on lookup.
type LRUCache struct {
	lru *expirable.LRU[string, models.CacheEntry]
	ttl time.Duration
	now func() time.Time
}

// NewLRUCache creates a cache holding at most size keys (0 = unbounded).
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, models.CacheEntry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns a copy of the live entry for key.
func (c *LRUCache) Get(key string) ([]models.CoverCandidate, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.CapturedAt) > c.ttl {
		c.lru.Remove(key)
		return nil, false
	}
	return cloneCovers(entry.Covers), true
}

// Set replaces the entry for key.
func (c *LRUCache) Set(key string, covers []models.CoverCandidate) {
	c.lru.Add(key, models.CacheEntry{Covers: cloneCovers(covers), CapturedAt: c.now()})
}

// Evict drops key.
func (c *LRUCache) Evict(key string) {
	c.lru.Remove(key)
}

// size reports the number of stored keys, expired ones included until evicted.
func (c *LRUCache) size() int {
	return c.lru.Len()
}

func cloneCovers(in []models.CoverCandidate) []models.CoverCandidate {
	out := make([]models.CoverCandidate, len(in))
	copy(out, in)
	return out
}
