package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// Bounds on how long Wait sleeps between attempts.
const (
	minWaitStep = 5 * time.Millisecond
	maxWaitStep = time.Second
)

// RateLimiter is a sliding-window limiter kept in a sorted set per key, so
// every scanner process sharing the Redis instance draws from the same
// exchange request budget.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb, now: time.Now}
}

// Allow reports whether one more request for key fits in the window and, if
// so, counts it.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.take(ctx, key, limit, window)
	return ok, err
}

// Wait blocks until a request for key is admitted or ctx ends. Between
// attempts it sleeps until the oldest request in the window expires.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, retry, err := rl.take(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(min(max(retry, minWaitStep), maxWaitStep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// take runs one admission attempt. retry is only meaningful when ok is false.
func (rl *RateLimiter) take(ctx context.Context, key string, limit int, window time.Duration) (ok bool, retry time.Duration, err error) {
	if err := ctx.Err(); err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		rl.now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
		max(window.Milliseconds(), 1),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: got %d values from script", key, len(res))
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Microsecond, nil
}
