package service

import (
	"sync"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

type cacheEntry struct {
	evidence []domain.Evidence
	expires  time.Time
}

// RetrievalCache memoizes ranked evidence. Keys embed the generation, and every committed
// write bumps it, so a read never sees results computed before that write.
type RetrievalCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	generation uint64
	entries    map[string]cacheEntry
	now        func() time.Time
}

// NewRetrievalCache creates a cache. A non-positive maxEntries disables caching.
func NewRetrievalCache(ttl time.Duration, maxEntries int) *RetrievalCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RetrievalCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// Generation is the current write generation.
func (c *RetrievalCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate drops every entry and advances the generation.
func (c *RetrievalCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	clear(c.entries)
}

// Get returns a copy of the cached evidence for key.
func (c *RetrievalCache) Get(key string) ([]domain.Evidence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]domain.Evidence(nil), e.evidence...), true
}

// Put stores evidence under key. The entry expires after the TTL or when the first of
// its documents reaches retention expiry, whichever comes first. When full, expired
// entries are swept first and, if still full, the entry closest to expiry is evicted.
func (c *RetrievalCache) Put(key string, evidence []domain.Evidence) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
				continue
			}
			if oldestKey == "" || e.expires.Before(oldest) {
				oldestKey, oldest = k, e.expires
			}
		}
		if len(c.entries) >= c.maxEntries && oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}
	expires := now.Add(c.ttl)
	for _, ev := range evidence {
		if ev.ExpiresAt != nil && ev.ExpiresAt.Before(expires) {
			expires = *ev.ExpiresAt
		}
	}
	c.entries[key] = cacheEntry{
		evidence: append([]domain.Evidence(nil), evidence...),
		expires:  expires,
	}
}
