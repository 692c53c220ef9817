package router

import (
	"net/http"
	"time"

	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/handler"
	"github.com/authvault/authvault/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	// API v1 routes
	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"AuthVault API v1","version":"0.1.0"}`))
	})

	// Public authentication routes (rate limited per client IP)
	registerRateLimit := mw.RateLimit("register", 3, 1*time.Hour)
	loginRateLimit := mw.RateLimit("login", 5, 1*time.Minute)
	refreshRateLimit := mw.RateLimit("refresh", 10, 1*time.Minute)

	mux.Handle("POST /api/v1/auth/register", registerRateLimit(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/v1/auth/login", loginRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/v1/auth/token/refresh", refreshRateLimit(http.HandlerFunc(h.RefreshToken)))

	// Protected routes (require a valid access token)
	mux.Handle("POST /api/v1/auth/logout", mw.Auth(http.HandlerFunc(h.Logout)))
	mux.Handle("POST /api/v1/auth/logout/all", mw.Auth(http.HandlerFunc(h.LogoutAll)))
	mux.Handle("GET /api/v1/users/me", mw.Auth(http.HandlerFunc(h.GetCurrentUser)))
	mux.Handle("GET /api/v1/users/me/security", mw.Auth(http.HandlerFunc(h.GetSecurityInfo)))
	mux.Handle("GET /api/v1/users/me/activity", mw.Auth(http.HandlerFunc(h.GetActivity)))
	mux.Handle("DELETE /api/v1/users/me", mw.Auth(http.HandlerFunc(h.DeactivateAccount)))

	// Apply middleware stack
	var handler http.Handler = mux

	handler = mw.CORS(cfg.Server.AllowedOrigins)(handler)
	handler = mw.SecurityHeaders(handler)
	handler = mw.Logger(handler)
	handler = mw.RequestID(handler)
	handler = mw.Recover(handler)

	return handler
}
