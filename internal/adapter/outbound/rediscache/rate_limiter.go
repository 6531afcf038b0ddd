// Package rediscache provides the shared-store-backed implementations of
// the Rate Limiter, Circuit Breaker propagation, and Policy Store change
// bus spec.md §6 calls for in multi-instance deployments, selected when
// COUNTER_STORE_URL points at a redis:// URL. Grounded on the teacher's
// MemoryRateLimiter shape (same RateLimiter interface, same fail-open
// contract) reimplemented against github.com/redis/go-redis/v9 instead of
// an in-process map.
package rediscache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.RateLimiter as a fixed-window counter in
// Redis: spec.md §4.2's documented key shape, "rate:{agent_id}:{window_start}",
// incremented atomically and given a TTL equal to the window so expired
// windows self-evict with no separate cleanup goroutine.
type RateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRateLimiter constructs a Redis-backed RateLimiter.
func NewRateLimiter(client *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{client: client, logger: logger}
}

// Allow increments the counter for the current fixed window and compares it
// against config.Rate. Per spec.md §4.2, an unreachable store fails open
// (allowed=true) rather than denying legitimate traffic on an
// infrastructure blip; the degradation itself is the caller's concern to
// log (GatewayService already does via the returned error).
func (l *RateLimiter) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	period := config.Period
	if period <= 0 {
		period = time.Minute
	}
	now := time.Now().UTC()
	windowStart := now.Truncate(period)
	windowKey := fmt.Sprintf("rate:%s:%d", key, windowStart.Unix())
	resetAt := windowStart.Add(period)

	limit := config.Rate
	if config.Burst > limit {
		limit = config.Burst
	}

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, period)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter store unreachable; failing open", "key", key, "error", err)
		return ratelimit.RateLimitResult{Allowed: true, Remaining: limit}, fmt.Errorf("rediscache: %w", err)
	}

	count := incr.Val()
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return ratelimit.RateLimitResult{
		Allowed:    count <= int64(limit),
		Remaining:  remaining,
		RetryAfter: resetAt.Sub(now),
		ResetAfter: resetAt.Sub(now),
	}, nil
}
