package auth

import (
	"strings"
	"testing"

	"github.com/authvault/authvault/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateUsername("alice"))
	assert.NoError(t, ValidateUsername("alice_01-x"))

	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 51)))
	assert.Error(t, ValidateUsername("alice!"))
	assert.Error(t, ValidateUsername("alice smith"))
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.NoError(t, ValidateEmail("a.b+tag@sub.example.org"))

	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("no-at-sign"))
	assert.Error(t, ValidateEmail("@example.com"))
	assert.Error(t, ValidateEmail("alice@"))
	assert.Error(t, ValidateEmail("alice@localhost"))
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	strict := config.PasswordConfig{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}

	assert.NoError(t, ValidatePassword("Str0ng-Pass!", strict))

	assert.Error(t, ValidatePassword("Sh0rt!", strict))
	assert.Error(t, ValidatePassword("nouppercase1!", strict))
	assert.Error(t, ValidatePassword("NOLOWERCASE1!", strict))
	assert.Error(t, ValidatePassword("NoDigitsHere!", strict))
	assert.Error(t, ValidatePassword("NoSpecials123", strict))
	assert.Error(t, ValidatePassword(strings.Repeat("Aa1!", 40), strict))

	// Relaxed policy only enforces length.
	relaxed := config.PasswordConfig{MinLength: 8}
	assert.NoError(t, ValidatePassword("justlowercase", relaxed))
}

func TestSanitizeUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unknown", SanitizeUserAgent(""))
	assert.Equal(t, "Mozilla/5.0", SanitizeUserAgent("Mozilla/5.0"))
	assert.Equal(t, "ab", SanitizeUserAgent("a\x00b\n"))
	assert.Len(t, SanitizeUserAgent(strings.Repeat("x", 600)), 500)
}
