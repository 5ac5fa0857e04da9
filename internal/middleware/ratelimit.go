package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// RateCounter counts requests per client and endpoint within a window.
// *database.RedisDB implements it.
type RateCounter interface {
	IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error)
}

// RateLimiter implements distributed rate limiting on a shared counter.
// Session saves and email recovery are the endpoints worth protecting:
// the first accepts large bodies, the second is an email oracle.
//
// Redis key pattern: "ratelimit:{ip}:{endpoint}" with TTL equal to window
//
// On limit exceeded:
//   - Returns 429 Too Many Requests with the standard error body
//   - Sets Retry-After header
//   - Logs the violation for monitoring
type RateLimiter struct {
	counter RateCounter
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per window.
//
// Example:
//
//	limiter := middleware.NewRateLimiter(redisDB, 10, time.Minute)
//	r.With(limiter.Limit("recover")).Post("/api/v1/sessions/recover", h.Recover)
func NewRateLimiter(counter RateCounter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
	}
}

// Limit creates middleware that applies the limit to one endpoint.
// Different endpoint names get independent counters.
//
// Rate limit headers (RFC 6585):
//   - X-RateLimit-Limit: Maximum requests allowed per window
//   - X-RateLimit-Remaining: Requests remaining in current window
//   - Retry-After: Seconds until rate limit resets (on 429 only)
//
// On counter errors the request is allowed through and the error logged.
func (rl *RateLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.counter == nil || rl.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := utils.ExtractClientIP(r)

			count, err := rl.counter.IncrementRateLimit(r.Context(), ip, endpoint, rl.window)
			if err != nil {
				log.Error().Err(err).Str("ip", ip).Str("endpoint", endpoint).Msg("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))

			if count > int64(rl.limit) {
				log.Warn().
					Str("ip", ip).
					Str("endpoint", endpoint).
					Int64("count", count).
					Msg("Rate limit exceeded")

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))

				utils.RespondWithError(w, r, http.StatusTooManyRequests, "rate_limited",
					"Too many requests. Please try again later.")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.limit-int(count)))

			next.ServeHTTP(w, r)
		})
	}
}
