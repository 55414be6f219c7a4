// Package pageview counts project page views behind a key-value backend.
package pageview

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	keyPrefix   = "pageviews:projects:"
	dedupPrefix = "deduplicate:"

	// DedupWindow is how long a visitor is ignored after being counted.
	DedupWindow = 24 * time.Hour
)

// ErrNoSlug is returned when a view is recorded without a slug.
var ErrNoSlug = errors.New("slug not found")

// Counter stores monotonically increasing counts.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	// MGet returns one count per key, zero for missing keys.
	MGet(ctx context.Context, keys []string) ([]int64, error)
}

// Deduper remembers keys for a limited time.
type Deduper interface {
	// MarkSeen records key and reports whether it was not already present.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Store is a backend that can both count and deduplicate.
type Store interface {
	Counter
	Deduper
}

// Key returns the counter key for a project slug.
func Key(slug string) string {
	return keyPrefix + slug
}

// DedupKey returns the visitor key for ip viewing slug. The address is
// hashed so it is never stored.
func DedupKey(ip, slug string) string {
	return fmt.Sprintf("%s%x:%s", dedupPrefix, sha256.Sum256([]byte(ip)), slug)
}

// Observer is notified about counted views.
type Observer interface {
	IncPageview(slug string)
}

// Tracker records and reads project views.
type Tracker struct {
	store Store
	obs   Observer
	log   *slog.Logger
}

// NewTracker creates a tracker. obs may be nil.
func NewTracker(store Store, obs Observer, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, obs: obs, log: log}
}

// Record counts a view of slug by ip. Repeat views from the same address
// within DedupWindow are ignored. It reports whether the view was counted.
func (t *Tracker) Record(ctx context.Context, slug, ip string) (bool, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return false, ErrNoSlug
	}
	if ip != "" {
		first, err := t.store.MarkSeen(ctx, DedupKey(ip, slug), DedupWindow)
		if err != nil {
			return false, fmt.Errorf("dedup view: %w", err)
		}
		if !first {
			return false, nil
		}
	}
	if _, err := t.store.Incr(ctx, Key(slug)); err != nil {
		return false, fmt.Errorf("increment views: %w", err)
	}
	if t.obs != nil {
		t.obs.IncPageview(slug)
	}
	return true, nil
}

// Views returns the count for slug. Read failures count as zero.
func (t *Tracker) Views(ctx context.Context, slug string) int64 {
	n, err := t.store.Get(ctx, Key(slug))
	if err != nil {
		t.log.Warn("read views failed", "slug", slug, "error", err)
		return 0
	}
	return n
}

// ViewsFor returns counts for every slug. Read failures count as zero.
func (t *Tracker) ViewsFor(ctx context.Context, slugs []string) map[string]int64 {
	out := make(map[string]int64, len(slugs))
	if len(slugs) == 0 {
		return out
	}
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = Key(s)
		out[s] = 0
	}
	counts, err := t.store.MGet(ctx, keys)
	if err != nil {
		t.log.Warn("read views failed", "count", len(slugs), "error", err)
		return out
	}
	for i, s := range slugs {
		if i < len(counts) {
			out[s] = counts[i]
		}
	}
	return out
}
