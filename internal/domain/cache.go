package domain

import (
	"context"
	"time"
)

// RateLimiter provides keyed rate limiting. Implementations back it with Redis
// (shared across replicas) or process memory.
type RateLimiter interface {
	// Allow reports whether one more event for key fits in limit per window,
	// counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Reserve is Allow that also reports how long until the next event would
	// be admitted when this one is refused.
	Reserve(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// CatalogSource produces a fresh market snapshot on demand.
type CatalogSource interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}
