// ABOUTME: Seen-key cache for at-least-once webhook deliveries
// ABOUTME: Uniform TTL, size-bounded, oldest-first eviction

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers message keys the relay path has already processed.
// Both bridges redeliver on timeouts, so a key that checks in twice
// inside the TTL window is a replay and must be dropped.
//
// Entries carry a fixed TTL, so insertion order is also expiry order:
// the front of the list is always the next entry to expire, which makes
// both capacity eviction and expiry purges O(1) per entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // *entry values, oldest at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	once    sync.Once
}

type entry struct {
	key       string
	expiresAt time.Time
}

// New creates a cache holding at most maxSize keys for ttl each.
// A background sweeper reclaims expired entries; Close stops it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Check reports whether key is live in the cache.
func (c *Cache) Check(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.entries[key]
	return ok && time.Now().Before(elem.Value.(*entry).expiresAt)
}

// CheckAndMark marks key and reports whether it was already live. The
// check and the mark happen under one lock so concurrent deliveries of
// the same key cannot both pass.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok && time.Now().Before(elem.Value.(*entry).expiresAt) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key, refreshing its TTL if already present. At capacity
// the oldest entry is evicted first.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

func (c *Cache) markLocked(key string) {
	deadline := time.Now().Add(c.ttl)

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*entry).expiresAt = deadline
		c.order.MoveToBack(elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.dropFrontLocked()
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, expiresAt: deadline})
}

func (c *Cache) dropFrontLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.entries, front.Value.(*entry).key)
}

// sweep periodically drops expired entries so dead keys don't hold
// capacity between deliveries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.done:
			return
		}
	}
}

// purgeExpired removes every expired entry. Expiry order matches list
// order, so it stops at the first live entry.
func (c *Cache) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Before(front.Value.(*entry).expiresAt) {
			return
		}
		c.dropFrontLocked()
	}
}

// size reports the number of entries currently held, live or expired.
func (c *Cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}
