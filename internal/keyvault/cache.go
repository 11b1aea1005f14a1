// ABOUTME: TTL cache for decrypted credential lookups
// ABOUTME: Positive hits live 5 minutes, negative (absent) hits 60 seconds

package keyvault

import (
	"sync"
	"time"
)

const (
	positiveTTL = 5 * time.Minute
	negativeTTL = 60 * time.Second
)

type cacheEntry struct {
	value     string
	found     bool
	expiresAt time.Time
}

// decryptCache memoizes vault lookups per (user, provider) so webhook
// bursts don't re-run decryption on every message.
type decryptCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newDecryptCache() *decryptCache {
	return &decryptCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(userID, provider string) string {
	return userID + "\x00" + provider
}

// get returns (value, found, ok) where ok reports a live cache entry
// and found distinguishes a cached value from a cached absence.
func (c *decryptCache) get(userID, provider string) (string, bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(userID, provider)]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return "", false, false
	}
	return entry.value, entry.found, true
}

func (c *decryptCache) put(userID, provider, value string, found bool) {
	ttl := positiveTTL
	if !found {
		ttl = negativeTTL
	}

	c.mu.Lock()
	c.entries[cacheKey(userID, provider)] = cacheEntry{
		value:     value,
		found:     found,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

func (c *decryptCache) invalidate(userID, provider string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(userID, provider))
	c.mu.Unlock()
}
