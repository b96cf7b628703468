package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/infinitune/roomserver/internal/utils"
)

// RateLimitKeyPrefix is the prefix for rate limit keys.
const RateLimitKeyPrefix = "ratelimit"

// RateLimiter implements sliding-window rate limiting over a Redis sorted set.
type RateLimiter struct {
	client *Client
	logger *utils.Logger
}

// RateLimit defines a rate limit constraint.
type RateLimit struct {
	// Key is the identifier for this rate limit.
	Key string

	// MaxRequests is the maximum number of requests allowed in the window.
	MaxRequests int

	// Window is the time window for rate limiting.
	Window time.Duration
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// RetryAfter is the time after which the client should retry.
	RetryAfter time.Duration

	// Limit is the maximum number of requests allowed in the window.
	Limit int
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: client.Logger(),
	}
}

// Allow checks if a request is allowed under the rate limit.
func (rl *RateLimiter) Allow(ctx context.Context, rateLimit RateLimit, identifier string) (*RateLimitResult, error) {
	rateLimitKey := formatRateLimitKey(rateLimit.Key, identifier)

	now := time.Now()
	windowStartMs := now.Add(-rateLimit.Window).UnixMilli()

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rateLimitKey, "0", strconv.FormatInt(windowStartMs, 10))
	countCmd := pipe.ZCard(ctx, rateLimitKey)
	oldestCmd := pipe.ZRange(ctx, rateLimitKey, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		rl.logger.Error("Failed to execute rate limit pipeline", err, "key", rateLimitKey)
		return nil, err
	}

	count, err := countCmd.Result()
	if err != nil && err != redis.Nil {
		rl.logger.Error("Failed to get rate limit count", err, "key", rateLimitKey)
		return nil, err
	}

	allowed := count < int64(rateLimit.MaxRequests)
	remaining := max(rateLimit.MaxRequests-int(count), 0)

	var retryAfter time.Duration
	if !allowed {
		oldest, err := oldestCmd.Result()
		if err != nil || len(oldest) == 0 {
			retryAfter = rateLimit.Window
		} else {
			oldestMs, err := strconv.ParseInt(oldest[0], 10, 64)
			if err != nil {
				retryAfter = rateLimit.Window
			} else {
				retryAfter = time.UnixMilli(oldestMs).Add(rateLimit.Window).Sub(now)
			}
		}
	} else {
		nowMs := now.UnixMilli()
		err = rl.client.Client().ZAdd(ctx, rateLimitKey, &redis.Z{
			Score:  float64(nowMs),
			Member: strconv.FormatInt(nowMs, 10),
		}).Err()
		if err != nil {
			rl.logger.Error("Failed to add token to rate limit", err, "key", rateLimitKey)
		}
		if err := rl.client.Expire(ctx, rateLimitKey, rateLimit.Window*2); err != nil {
			rl.logger.Error("Failed to set expiry on rate limit key", err, "key", rateLimitKey)
		}
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		Limit:      rateLimit.MaxRequests,
	}, nil
}

// Reset resets a rate limit for an identifier.
func (rl *RateLimiter) Reset(ctx context.Context, rateLimit RateLimit, identifier string) error {
	rateLimitKey := formatRateLimitKey(rateLimit.Key, identifier)
	if err := rl.client.Del(ctx, rateLimitKey); err != nil {
		rl.logger.Error("Failed to reset rate limit", err, "key", rateLimitKey)
		return err
	}
	return nil
}

func formatRateLimitKey(key, identifier string) string {
	return FormatKey(RateLimitKeyPrefix, fmt.Sprintf("%s:%s", key, identifier))
}
