package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authvault/authvault/internal/auth"
)

const (
	// AccountIDKey carries the authenticated account ID through the context.
	AccountIDKey contextKey = "account_id"
	// UsernameKey carries the authenticated username through the context.
	UsernameKey contextKey = "username"
	// EmailKey carries the authenticated email through the context.
	EmailKey contextKey = "email"
)

// Auth verifies the bearer access token and stores the account identity
// in the request context. Requests without a valid token get a 401.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.codec.Verify(token, auth.TokenTypeAccess)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, AccountIDKey, claims.Subject)
		ctx = context.WithValue(ctx, UsernameKey, claims.Username)
		ctx = context.WithValue(ctx, EmailKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the access token from the Authorization header,
// falling back to the access_token cookie for browser clients.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}

	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetAccountID retrieves the authenticated account ID from context
func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(AccountIDKey).(string); ok {
		return id
	}
	return ""
}

// GetUsername retrieves the authenticated username from context
func GetUsername(ctx context.Context) string {
	if name, ok := ctx.Value(UsernameKey).(string); ok {
		return name
	}
	return ""
}
