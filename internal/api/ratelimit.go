package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// RateLimitMiddleware applies a token bucket per client address. RealIP must
// run earlier in the chain for proxied deployments.
func RateLimitMiddleware(rate, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = rate
	}
	limiter := ratelimit.New(&ratelimit.Config{
		Rate:  rate,
		Burst: burst,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.Allow(r.Context(), key) {
				logger.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
