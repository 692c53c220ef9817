package auth

import (
	"testing"
	"time"

	"github.com/authvault/authvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(config.TokenConfig{
		SecretKey:       "test-secret-key",
		Issuer:          "authvault-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	})
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenCodec(config.TokenConfig{})
	require.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()
	codec := testCodec(t)

	tok, err := codec.CreateAccessToken("acct-1", "alice", "alice@example.com", true)
	require.NoError(t, err)

	claims, err := codec.Verify(tok, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.True(t, claims.Verified)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Parallel()
	codec := testCodec(t)

	tok, err := codec.CreateRefreshToken("acct-1")
	require.NoError(t, err)

	claims, err := codec.Verify(tok, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Empty(t, claims.Username)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	t.Parallel()
	codec := testCodec(t)

	access, err := codec.CreateAccessToken("acct-1", "alice", "alice@example.com", false)
	require.NoError(t, err)
	refresh, err := codec.CreateRefreshToken("acct-1")
	require.NoError(t, err)

	// A refresh token is not an access token and vice versa.
	_, err = codec.Verify(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Verify(access, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	codec := testCodec(t)

	other, err := NewTokenCodec(config.TokenConfig{
		SecretKey:       "a-different-secret",
		Issuer:          "authvault-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	})
	require.NoError(t, err)

	tok, err := other.CreateAccessToken("acct-1", "alice", "alice@example.com", false)
	require.NoError(t, err)

	_, err = codec.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	codec, err := NewTokenCodec(config.TokenConfig{
		SecretKey:       "test-secret-key",
		Issuer:          "authvault-test",
		AccessTokenTTL:  -1 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	})
	require.NoError(t, err)

	tok, err := codec.CreateAccessToken("acct-1", "alice", "alice@example.com", false)
	require.NoError(t, err)

	_, err = codec.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()
	codec := testCodec(t)

	_, err := codec.Verify("not.a.jwt", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Verify("", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	hash := HashToken("some-refresh-token")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("some-refresh-token"))
	assert.NotEqual(t, hash, HashToken("other-refresh-token"))

	assert.True(t, VerifyTokenHash("some-refresh-token", hash))
	assert.False(t, VerifyTokenHash("other-refresh-token", hash))
}
