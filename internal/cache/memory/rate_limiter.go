// Package memory implements the process-local rate limiter used when Redis is
// not configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

// sweepEvery is how many calls pass between scans for idle buckets.
const sweepEvery = 1024

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// RateLimiter keeps one token bucket per key. A limit of n per window refills
// one token every window/n with a burst of n.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
	now     func() time.Time
}

// NewRateLimiter creates an empty in-memory RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether an event for key is admitted, consuming a token if so.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := rl.Reserve(ctx, key, limit, window)
	return allowed, err
}

// Reserve admits an event for key or reports how long until one would be.
func (rl *RateLimiter) Reserve(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return false, 0, fmt.Errorf("memory: rate limit %s: invalid limit %d per %s", key, limit, window)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%sweepEvery == 0 {
		rl.sweep(now)
	}

	// The limit is part of the bucket identity so callers with different
	// limits on the same key do not share tokens.
	id := fmt.Sprintf("%s|%d|%s", key, limit, window)
	b, ok := rl.buckets[id]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			window:  window,
		}
		rl.buckets[id] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, window, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// sweep drops buckets idle for longer than their window; they are full again
// by then and would be recreated identically.
func (rl *RateLimiter) sweep(now time.Time) {
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(rl.buckets, id)
		}
	}
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
