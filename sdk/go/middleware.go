package authvault

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

// SessionContextKey is the key under which the authenticated Session is
// stored in the request context.
const SessionContextKey contextKey = "authvault_session"

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	// Skipper returns true to skip authentication for the request.
	Skipper func(r *http.Request) bool

	// TokenExtractor is an optional custom function to extract the access
	// token from a request. If nil, the default extractor reads from the
	// Authorization header first, then falls back to the configured cookie.
	TokenExtractor func(r *http.Request) string

	// ErrorHandler is an optional custom handler for authentication
	// failures. If nil, a JSON 401 response is written.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware returns an http.Handler middleware that validates the access
// token against the AuthVault server and stores the Session in the request
// context.
func (c *Client) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	extract := cfg.TokenExtractor
	if extract == nil {
		extract = c.defaultTokenExtractor
	}
	fail := cfg.ErrorHandler
	if fail == nil {
		fail = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skipper != nil && cfg.Skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			token := extract(r)
			session, err := c.ValidateToken(r.Context(), token)
			if err != nil {
				fail(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the authenticated Session stored by the
// middleware, or nil when the request was not authenticated.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(SessionContextKey).(*Session)
	return session
}

func (c *Client) defaultTokenExtractor(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(c.cfg.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	switch {
	case errors.Is(err, ErrNoToken):
		w.Write([]byte(`{"error":{"code":"unauthorized","message":"no access token provided"}}`))
	default:
		w.Write([]byte(`{"error":{"code":"invalid_token","message":"token is invalid or expired"}}`))
	}
}
