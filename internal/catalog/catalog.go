// Package catalog fronts the reference catalog with a short-TTL cache.
// Menus hit it on every step, so reads collapse through singleflight
// and a refresh failure falls back to the last good snapshot.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"advancebot/internal/core"
	"advancebot/internal/ledger"
)

type Cache struct {
	source ledger.Catalog
	ttl    time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	entries   []core.ReferenceEntry
	fetchedAt time.Time
}

func New(source ledger.Catalog, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{source: source, ttl: ttl}
}

// Entries returns the cached catalog, refreshing it once the TTL has
// lapsed. Concurrent refreshes share one backend read. The returned
// slice is the caller's to keep.
func (c *Cache) Entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	if entries, ok := c.fresh(); ok {
		return entries, nil
	}

	v, err, _ := c.group.Do("entries", func() (any, error) {
		// A waiter may arrive right after the winner stored its result.
		if entries, ok := c.fresh(); ok {
			return entries, nil
		}
		fetched, err := c.source.Entries(ctx)
		if err != nil {
			c.mu.RLock()
			stale := c.entries
			c.mu.RUnlock()
			if stale != nil {
				slog.WarnContext(ctx, "Catalog refresh failed, serving last snapshot",
					"age", time.Since(c.snapshotTime()).Round(time.Second),
					"error", err)
				return append([]core.ReferenceEntry(nil), stale...), nil
			}
			return nil, err
		}
		c.mu.Lock()
		c.entries = fetched
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return append([]core.ReferenceEntry(nil), fetched...), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.ReferenceEntry), nil
}

// Invalidate drops the snapshot; the next read goes to the backend.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) fresh() ([]core.ReferenceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entries == nil || time.Since(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return append([]core.ReferenceEntry(nil), c.entries...), true
}

func (c *Cache) snapshotTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
