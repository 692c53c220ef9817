package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/authvault/authvault/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType tags a token as usable for one purpose only. A refresh token
// presented where an access token is expected is rejected even if otherwise
// valid, and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ErrTokenInvalid covers every verification failure: bad signature, expired,
// malformed, or wrong token type. Callers do not need to discriminate.
var ErrTokenInvalid = errors.New("invalid or expired token")

// TokenClaims are the signed claims carried by both token types.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Verified  bool      `json:"verified,omitempty"`
	TokenType TokenType `json:"type"`
}

// TokenCodec signs and verifies session tokens. It is pure over the secret
// key and its inputs; persistence of refresh tokens belongs to the ledger.
type TokenCodec struct {
	cfg    config.TokenConfig
	secret []byte
}

// NewTokenCodec creates a new TokenCodec from the token configuration.
func NewTokenCodec(cfg config.TokenConfig) (*TokenCodec, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("token secret key is required")
	}
	return &TokenCodec{cfg: cfg, secret: []byte(cfg.SecretKey)}, nil
}

// CreateAccessToken mints a short-lived access token carrying the identity
// claims consumers reconstruct a session from.
func (c *TokenCodec) CreateAccessToken(accountID, username, email string, verified bool) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTokenTTL)),
			ID:        uuid.New().String(),
		},
		Username:  username,
		Email:     email,
		Verified:  verified,
		TokenType: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// CreateRefreshToken mints a long-lived refresh token carrying the subject only.
func (c *TokenCodec) CreateRefreshToken(accountID string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.RefreshTokenTTL)),
			ID:        uuid.New().String(),
		},
		TokenType: TokenTypeRefresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, and the type tag, and returns the decoded
// claims. Every failure mode maps to ErrTokenInvalid.
func (c *TokenCodec) Verify(tokenString string, expected TokenType) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: wrong token type", ErrTokenInvalid)
	}

	return claims, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTokenTTL() time.Duration {
	return c.cfg.AccessTokenTTL
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTokenTTL() time.Duration {
	return c.cfg.RefreshTokenTTL
}

// HashToken creates a SHA-256 hash of a token for ledger storage. The raw
// token value is never persisted.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerifyTokenHash compares a raw token against a stored hash in constant time.
func VerifyTokenHash(token, tokenHash string) bool {
	return hmac.Equal([]byte(HashToken(token)), []byte(tokenHash))
}
