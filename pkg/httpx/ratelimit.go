package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, API key, user ID).
type KeyExtractor func(*http.Request) string

// RateDecision is the outcome of one limiter check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts one request against key. Implementations are expected to be
// shared across instances so that all replicas see the same counters.
type Limiter interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}

// LimiterFunc adapts a function to Limiter.
type LimiterFunc func(ctx context.Context, key string) (RateDecision, error)

func (f LimiterFunc) Allow(ctx context.Context, key string) (RateDecision, error) {
	return f(ctx, key)
}

// RateLimitMiddleware rejects requests once the limiter denies their key.
// A limiter error fails closed with 503.
func RateLimitMiddleware(l Limiter, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key")
				WriteError(w, http.StatusBadRequest, "invalid_request", "missing client identity")
				return
			}

			d, err := l.Allow(ctx, key)
			if err != nil {
				log.Error("rate limit: limiter unavailable", "key", key, "err", err)
				WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "rate limiter unavailable")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(int(time.Until(d.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
