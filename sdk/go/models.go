package authvault

import "time"

// Session is the identity behind a valid access token.
type Session struct {
	AccountID    string   `json:"accountId"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	IsVerified   bool     `json:"isVerified"`
	Capabilities []string `json:"capabilities"`
}

// Account is the client-safe account projection returned by the API.
type Account struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	IsActive   bool       `json:"isActive"`
	IsVerified bool       `json:"isVerified"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

// RegisterRequest contains the data for creating a new account.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
}

// LoginRequest contains the credentials for authentication. Identifier is
// a username or an email address.
type LoginRequest struct {
	Identifier   string `json:"identifier"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
	RememberMe   bool   `json:"rememberMe,omitempty"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    int     `json:"expiresIn"`
	Account      Account `json:"account"`
}

// RefreshResponse is returned from a token refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// SecurityInfo summarizes the security state of an account.
type SecurityInfo struct {
	FailedAttempts int        `json:"failedLoginAttempts"`
	IsLocked       bool       `json:"isLocked"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	ActiveSessions int        `json:"activeSessions"`
}
