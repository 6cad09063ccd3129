package collector

import (
	"sync"
	"time"
)

// ScoreCache stores computed churn scores keyed by account and user. The
// interface is deliberately small so a distributed cache can replace the
// in-process one without touching the scorer.
type ScoreCache interface {
	Get(accountID, userID string) (float64, bool)
	Put(accountID, userID string, score float64)
	Invalidate(accountID, userID string)
}

type cacheKey struct {
	accountID string
	userID    string
}

type cacheEntry struct {
	score      float64
	computedAt time.Time
}

type ttlCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

// NewTTLCache returns an in-process cache whose entries expire after ttl.
// Expired entries read as absent and are superseded on the next Put.
func NewTTLCache(ttl time.Duration) ScoreCache {
	return newTTLCache(ttl, time.Now)
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		now:     now,
		entries: map[cacheKey]cacheEntry{},
	}
}

func (c *ttlCache) Get(accountID, userID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey{accountID, userID}]
	if !ok {
		return 0, false
	}
	if c.now().Sub(entry.computedAt) >= c.ttl {
		delete(c.entries, cacheKey{accountID, userID})
		return 0, false
	}
	return entry.score, true
}

func (c *ttlCache) Put(accountID, userID string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{accountID, userID}] = cacheEntry{score: score, computedAt: c.now()}
}

func (c *ttlCache) Invalidate(accountID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{accountID, userID})
}
