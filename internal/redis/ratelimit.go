package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis-backed sliding-window limiter plus a dynamic
// block (for server-driven Retry-After hints), adapted from
// pkg/redis/ratelimit.go for internal/ratelimit's per-platform buckets.
type RateLimiter struct {
	client    *Client
	keyPrefix string
}

func NewRateLimiter(client *Client, keyPrefix string) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}
}

func (r *RateLimiter) blockKey(key string) string { return r.keyPrefix + key + ":block" }

// BlockFor fails every Allow call for key for d, used when a platform
// returns 429 with a Retry-After hint.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.blockKey(key), "1", d)
}

func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	exists, err := r.client.Exists(ctx, r.blockKey(key))
	if err != nil || !exists {
		return false, 0, err
	}
	ttl, err := r.client.TTL(ctx, r.blockKey(key))
	if err != nil {
		return true, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}

var slidingWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)
	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	else
		local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
		if #oldest > 0 then
			return {0, 0, oldest[2]}
		end
		return {0, 0, 0}
	end
`)

// RateLimitResult is the outcome of a sliding-window Allow check.
type RateLimitResult struct {
	Allowed bool
	RetryIn time.Duration
}

// Allow checks a sliding-window rate limit of limit requests per window,
// failing open (allowed=true) on a Redis error so a limiter outage never
// blocks the reconciliation engine outright.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	rateKey := r.keyPrefix + key

	if blocked, ttl, err := r.IsBlocked(ctx, key); err == nil && blocked {
		return &RateLimitResult{Allowed: false, RetryIn: ttl}, nil
	}

	result, err := slidingWindowScript.Run(ctx, r.client.rdb, []string{rateKey},
		now.UnixMilli(), windowStart.UnixMilli(), limit, window.Milliseconds(),
	).Slice()
	if err != nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	allowedFlag, _ := toInt64(result[0])
	res := &RateLimitResult{Allowed: allowedFlag == 1}
	if !res.Allowed && len(result) > 2 {
		if oldestMs, err := toInt64(result[2]); err == nil && oldestMs > 0 {
			res.RetryIn = time.UnixMilli(oldestMs).Add(window).Sub(now)
		}
	}
	return res, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, nil
	}
}
