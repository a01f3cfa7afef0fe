// Package catalog holds the in-memory market snapshot that queries are
// matched against. A snapshot is served until it ages past the caller's
// freshness window, then refreshed from the source; concurrent callers share
// one outstanding refresh, and a failed refresh falls back to the previous
// snapshot when there is one.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/metrics"
)

const refreshKey = "snapshot"

// Cache serves catalog snapshots. It is safe for concurrent use.
type Cache struct {
	source domain.CatalogSource
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group

	mu           sync.RWMutex
	snapshot     *domain.Snapshot
	backoffUntil time.Time
	lastErr      error
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used to judge freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache backed by source.
func NewCache(source domain.CatalogSource, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		logger: logger.With(slog.String("component", "catalog_cache")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the held snapshot when it is younger than maxAge, otherwise
// refreshes it. If the refresh fails and a previous snapshot exists, the
// previous snapshot is returned with a nil error; with no previous snapshot
// the refresh error is returned.
func (c *Cache) Get(ctx context.Context, maxAge time.Duration) (*domain.Snapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	backoffUntil := c.backoffUntil
	c.mu.RUnlock()

	now := c.now()
	if snap != nil && snap.Age(now) < maxAge {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return snap, nil
	}

	// The source told us to back off; do not hit it again until then.
	if now.Before(backoffUntil) {
		if snap != nil {
			metrics.CacheLookups.WithLabelValues("stale").Inc()
			return snap, nil
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, &domain.RateLimitError{RetryAfter: backoffUntil.Sub(now).Round(time.Second)}
	}

	fresh, err := c.refresh(ctx, maxAge)
	if err == nil {
		metrics.CacheLookups.WithLabelValues("refreshed").Inc()
		return fresh, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	if snap != nil {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		c.logger.WarnContext(ctx, "refresh failed, serving stale snapshot",
			slog.Duration("age", snap.Age(now)),
			slog.Int("markets", snap.Len()),
			slog.String("error", err.Error()),
		)
		return snap, nil
	}
	metrics.CacheLookups.WithLabelValues("error").Inc()
	return nil, err
}

// Refresh forces a refresh regardless of age. Concurrent calls, including
// those made through Get, share a single source fetch.
func (c *Cache) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return c.refresh(ctx, 0)
}

// Current returns the held snapshot without performing I/O. It is nil until
// the first successful refresh.
func (c *Cache) Current() *domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Status describes the cache for health endpoints.
type Status struct {
	Markets   int
	FetchedAt time.Time
	Age       time.Duration
	LastError string
}

// Status returns a point-in-time description of the cache.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{Markets: c.snapshot.Len(), FetchedAt: c.snapshot.FetchedAt()}
	if c.snapshot != nil {
		st.Age = c.snapshot.Age(c.now())
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// refresh joins or starts the shared fetch and waits for it or for ctx. When
// maxAge is positive, a caller that starts a flight after another one has
// already installed a snapshot younger than maxAge gets that snapshot without
// a second fetch.
func (c *Cache) refresh(ctx context.Context, maxAge time.Duration) (*domain.Snapshot, error) {
	// The fetch outlives any single waiter so one caller cancelling does not
	// fail the others.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if maxAge > 0 {
			if snap := c.Current(); snap != nil && snap.Age(c.now()) < maxAge {
				return snap, nil
			}
		}
		return c.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("catalog: refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Snapshot), nil
	}
}

func (c *Cache) fetch(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := c.source.FetchSnapshot(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			c.backoffUntil = c.now().Add(rl.RetryAfter)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("catalog: refresh: %w", err)
	}
	if snap == nil {
		snap = domain.NewSnapshot(nil, c.now())
	}

	c.mu.Lock()
	c.snapshot = snap
	c.lastErr = nil
	c.backoffUntil = time.Time{}
	c.mu.Unlock()

	metrics.SnapshotMarkets.Set(float64(snap.Len()))
	c.logger.InfoContext(ctx, "catalog refreshed",
		slog.Int("markets", snap.Len()),
		slog.Time("fetched_at", snap.FetchedAt()),
	)
	return snap, nil
}
