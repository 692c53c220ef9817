package model

import (
	"time"
)

// RefreshToken is a ledger row for an issued refresh token.
// Only the SHA-256 hash of the token value is ever persisted.
type RefreshToken struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	TokenHash  string     `json:"-"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
	IPAddress  string     `json:"ipAddress"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// DeviceInfo captures the client context a refresh token was issued to.
type DeviceInfo struct {
	UserAgent  string `json:"userAgent"`
	IPAddress  string `json:"ipAddress"`
	RememberMe bool   `json:"rememberMe"`
}

// IsExpired reports whether the ledger row has passed its expiry.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsRevoked reports whether the ledger row has been revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsUsable reports whether the token may still be exchanged for access tokens.
func (t *RefreshToken) IsUsable() bool {
	return !t.IsRevoked() && !t.IsExpired()
}
