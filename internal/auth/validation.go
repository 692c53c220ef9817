package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/authvault/authvault/internal/config"
)

// ValidateUsername checks the username against the registration rules:
// 3-50 characters from [a-zA-Z0-9_-].
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 50 {
		return fmt.Errorf("username must be between 3 and 50 characters")
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return fmt.Errorf("username may only contain letters, digits, underscore, and hyphen")
		}
	}
	return nil
}

// ValidateEmail performs a structural check on the email address.
func ValidateEmail(email string) error {
	if len(email) < 3 || len(email) > 255 {
		return fmt.Errorf("invalid email address")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return fmt.Errorf("invalid email address")
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword checks the password against the configured policy.
func ValidatePassword(password string, policy config.PasswordConfig) error {
	minLength := policy.MinLength
	if minLength == 0 {
		minLength = 8
	}

	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}
	// Cap length to bound hashing cost
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters long")
	}

	hasUpper, hasLower, hasDigit, hasSpecial := false, false, false, false
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if policy.RequireUpper && !hasUpper {
		return fmt.Errorf("password must contain an uppercase letter")
	}
	if policy.RequireLower && !hasLower {
		return fmt.Errorf("password must contain a lowercase letter")
	}
	if policy.RequireDigit && !hasDigit {
		return fmt.Errorf("password must contain a digit")
	}
	if policy.RequireSpecial && !hasSpecial {
		return fmt.Errorf("password must contain a special character")
	}

	return nil
}

// SanitizeUserAgent bounds and cleans a client user-agent string before it
// is persisted in the audit trail.
func SanitizeUserAgent(userAgent string) string {
	if userAgent == "" {
		return "Unknown"
	}
	if len(userAgent) > 500 {
		userAgent = userAgent[:500]
	}
	var b strings.Builder
	for _, r := range userAgent {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
