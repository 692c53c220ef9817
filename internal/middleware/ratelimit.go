package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RateLimit returns a middleware that limits each client IP to limit
// requests per window on the wrapped route. Counters live in Redis so
// limits hold across replicas. Redis failures let the request through
// rather than taking the auth endpoints down with the cache.
func (m *Middleware) RateLimit(name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.cfg.Security.RateLimiting.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", name, clientIP(r))

			count, err := m.rdb.Incr(r.Context(), key)
			if err != nil {
				m.log.Warn().Err(err).Str("key", key).Msg("Rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			if count == 1 {
				if err := m.rdb.Expire(r.Context(), key, window); err != nil {
					m.log.Warn().Err(err).Str("key", key).Msg("Rate limit expiry failed")
				}
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Too many requests, please try again later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller address, preferring the first
// X-Forwarded-For entry set by the reverse proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
