// Package authvault provides a Go client for the AuthVault API, including
// an http.Handler middleware for protecting routes in downstream services.
package authvault

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the configuration for the AuthVault client.
type Config struct {
	// BaseURL is the root URL of the AuthVault server.
	// Examples: "https://auth.example.com" or "https://auth.example.com/api/v1"
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// CookieName is the name of the access token cookie set by AuthVault.
	// Default: "access_token"
	CookieName string

	// CacheTTL controls how long validated tokens are cached in memory
	// to reduce calls to the AuthVault server. Set to 0 to disable caching.
	// Default: 2 minutes
	CacheTTL time.Duration

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.CookieName == "" {
		c.CookieName = "access_token"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 2 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client is the AuthVault SDK client.
type Client struct {
	cfg   Config
	cache *sessionCache
}

// NewClient creates a new AuthVault client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:   cfg,
		cache: newSessionCache(),
	}
}

// ValidateToken validates an access token by calling the AuthVault server.
// Results are cached according to CacheTTL to reduce network calls.
func (c *Client) ValidateToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	if c.cfg.CacheTTL > 0 {
		if session, ok := c.cache.get(token); ok {
			return session, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authvault: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrAccountDisabled
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("authvault: failed to parse session: %w", err)
	}

	if c.cfg.CacheTTL > 0 {
		c.cache.set(token, &session, c.cfg.CacheTTL)
	}

	return &session, nil
}

// InvalidateToken removes a token from the local cache. Call this after
// logout so stale sessions are not served from cache.
func (c *Client) InvalidateToken(token string) {
	c.cache.delete(token)
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	body, err := c.post(ctx, "/auth/register", req, "")
	if err != nil {
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("authvault: failed to parse register response: %w", err)
	}
	return &account, nil
}

// Login authenticates with a username or email and password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	body, err := c.post(ctx, "/auth/login", req, "")
	if err != nil {
		return nil, err
	}

	var login LoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return nil, fmt.Errorf("authvault: failed to parse login response: %w", err)
	}
	return &login, nil
}

// RefreshToken exchanges a refresh token for a new access token. The refresh
// token itself stays valid until it expires or is revoked.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body, err := c.post(ctx, "/auth/token/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp RefreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("authvault: failed to parse refresh response: %w", err)
	}
	return &resp, nil
}

// Logout revokes a single refresh token. The access token authenticates
// the call.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	_, err := c.post(ctx, "/auth/logout", map[string]string{
		"refreshToken": refreshToken,
	}, accessToken)
	if err != nil {
		return err
	}
	c.cache.delete(accessToken)
	return nil
}

// LogoutAll revokes every refresh token of the authenticated account.
func (c *Client) LogoutAll(ctx context.Context, accessToken string) error {
	_, err := c.post(ctx, "/auth/logout/all", nil, accessToken)
	if err != nil {
		return err
	}
	c.cache.clear()
	return nil
}

// SecurityInfo retrieves the security posture of the authenticated account.
func (c *Client) SecurityInfo(ctx context.Context, accessToken string) (*SecurityInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/users/me/security", nil)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authvault: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var info SecurityInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("authvault: failed to parse security info: %w", err)
	}
	return &info, nil
}

// post sends a POST request to the AuthVault API.
func (c *Client) post(ctx context.Context, path string, payload interface{}, token string) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("authvault: failed to marshal request: %w", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authvault: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authvault: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// sessionCache provides in-memory caching for validated sessions.
type sessionCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	session   *Session
	expiresAt time.Time
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		entries: make(map[string]*cacheEntry),
	}
}

func (sc *sessionCache) get(token string) (*Session, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	entry, ok := sc.entries[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.session, true
}

func (sc *sessionCache) set(token string, session *Session, ttl time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	// Drop entries that have expired since the last write.
	now := time.Now()
	for k, v := range sc.entries {
		if now.After(v.expiresAt) {
			delete(sc.entries, k)
		}
	}
	sc.entries[token] = &cacheEntry{
		session:   session,
		expiresAt: now.Add(ttl),
	}
}

func (sc *sessionCache) delete(token string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.entries, token)
}

func (sc *sessionCache) clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.entries = make(map[string]*cacheEntry)
}
