package diagram

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BlobStore persists rendered markup across restarts.
type BlobStore interface {
	GetDiagram(ctx context.Context, key string) (markup string, ok bool, err error)
	PutDiagram(ctx context.Context, key, markup string) error
}

type cacheEntry struct {
	markup    string
	updatedAt time.Time
}

// Cache is an Engine that memoizes successful renders by source hash. Failed
// renders are never cached.
type Cache struct {
	next  Engine
	blobs BlobStore
	ttl   time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// NewCache wraps next. blobs may be nil.
func NewCache(next Engine, ttl time.Duration, blobs BlobStore, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		next:    next,
		blobs:   blobs,
		ttl:     ttl,
		log:     log,
		entries: make(map[string]cacheEntry),
	}
}

// Key returns the cache key for a diagram source. Markup is shared between
// diagrams with the same source; hits are rewritten to the caller's id.
func Key(source string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(source)))
}

func (c *Cache) Render(ctx context.Context, id, source string) (string, error) {
	key := Key(source)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expiredLocked(e, time.Now()) {
		c.hits++
		c.mu.Unlock()
		return rebindID(e.markup, id), nil
	}
	c.mu.Unlock()

	if c.blobs != nil {
		markup, ok, err := c.blobs.GetDiagram(ctx, key)
		if err != nil {
			c.log.Warn("diagram cache read failed", "key", key, "error", err)
		} else if ok {
			c.put(key, markup, true)
			return rebindID(markup, id), nil
		}
	}

	markup, err := c.next.Render(ctx, id, source)
	if err != nil {
		return "", err
	}
	c.put(key, markup, false)
	if c.blobs != nil {
		if err := c.blobs.PutDiagram(ctx, key, markup); err != nil {
			c.log.Warn("diagram cache write failed", "key", key, "error", err)
		}
	}
	return markup, nil
}

func (c *Cache) put(key, markup string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{markup: markup, updatedAt: time.Now()}
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *Cache) expiredLocked(e cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.updatedAt) > c.ttl
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, e := range c.entries {
		if c.expiredLocked(e, now) {
			delete(c.entries, key)
		}
	}
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
