package model

import (
	"time"
)

// Account represents a registered account with its credential and lockout state.
// The lockout state machine is derived from FailedAttempts and LockedUntil;
// "locked" is always computed at read time, there is no background unlock timer.
type Account struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"` // never expose password hash
	Salt           string     `json:"-"`
	IsActive       bool       `json:"isActive"`
	IsVerified     bool       `json:"isVerified"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
}

// IsLocked reports whether the account is currently locked out.
func (a *Account) IsLocked() bool {
	if a.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockedUntil)
}

// Summary is the client-safe projection of an account.
type AccountSummary struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	IsActive   bool       `json:"isActive"`
	IsVerified bool       `json:"isVerified"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

// Summary returns the client-safe projection of the account.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		IsActive:   a.IsActive,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
		LastLogin:  a.LastLogin,
	}
}

// SecurityInfo summarizes the security state of an account.
type SecurityInfo struct {
	FailedAttempts int        `json:"failedLoginAttempts"`
	IsLocked       bool       `json:"isLocked"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	ActiveSessions int        `json:"activeSessions"`
}
