package middleware

import (
	"net/http"
	"strconv"

	"github.com/infinitune/roomserver/internal/db/redis"
	"github.com/infinitune/roomserver/internal/utils"
)

// RateLimitMiddleware throttles control-plane requests per client IP using
// the Redis sliding-window limiter.
type RateLimitMiddleware struct {
	limiter *redis.RateLimiter
	limit   redis.RateLimit
	logger  *utils.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. A nil limiter
// disables throttling (Redis is optional).
func NewRateLimitMiddleware(limiter *redis.RateLimiter, limit redis.RateLimit, logger *utils.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		logger:  logger.Named("ratelimit_middleware"),
	}
}

// Limit is a middleware that enforces the rate limit.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	if m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := m.limiter.Allow(r.Context(), m.limit, utils.GetRequestIP(r))
		if err != nil {
			// Redis trouble should not take the API down.
			m.logger.Warn("Rate limit check failed, allowing request", "err", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
