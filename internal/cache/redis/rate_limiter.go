package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter using a sliding-window approach
// backed by Redis sorted sets and an atomic Lua script. Limits are shared by
// every process pointed at the same Redis, so cooldowns hold across replicas.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	prefix        string
	now           func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client. Keys are
// stored under "<prefix>ratelimit:".
func NewRateLimiter(c *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		prefix:        prefix,
		now:           time.Now,
	}
}

func (rl *RateLimiter) rateLimitKey(key string) string {
	return rl.prefix + "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. It returns true if the request is allowed (and
// the request is counted), or false if the limit has been reached.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := rl.Reserve(ctx, key, limit, window)
	return allowed, err
}

// Reserve is Allow plus the time until the oldest counted event leaves the
// window when the request is refused.
func (rl *RateLimiter) Reserve(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := rl.now().UnixMicro()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rl.rateLimitKey(key)},
		now,
		window.Microseconds(),
		limit,
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit reserve %s: %w", key, err)
	}
	if len(result) < 3 {
		return false, 0, fmt.Errorf("redis: rate limit reserve %s: unexpected result length %d", key, len(result))
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(result[2]) * time.Microsecond, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
