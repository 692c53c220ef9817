package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/model"
)

// RefreshTokenRepository is the persisted refresh-token ledger.
type RefreshTokenRepository struct {
	db *database.Postgres
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository
func NewRefreshTokenRepository(db *database.Postgres) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new ledger row. Only the token hash is persisted.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	deviceJSON, err := json.Marshal(token.DeviceInfo)
	if err != nil {
		deviceJSON = []byte("{}")
	}

	query := `
		INSERT INTO refresh_tokens (id, account_id, token_hash, device_info, ip_address, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		token.ID,
		token.AccountID,
		token.TokenHash,
		deviceJSON,
		token.IPAddress,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetActiveByHash retrieves an unrevoked, unexpired ledger row by token
// hash. A non-empty accountID scopes the lookup to that account so a token
// can never be confused across accounts.
func (r *RefreshTokenRepository) GetActiveByHash(ctx context.Context, tokenHash, accountID string) (*model.RefreshToken, error) {
	query := `
		SELECT id, account_id, token_hash, device_info, ip_address, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > now()
		  AND ($2 = '' OR account_id::text = $2)
	`
	var token model.RefreshToken
	var deviceJSON []byte
	err := r.db.QueryRowContext(ctx, query, tokenHash, accountID).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&deviceJSON,
		&token.IPAddress,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if len(deviceJSON) > 0 {
		json.Unmarshal(deviceJSON, &token.DeviceInfo)
	}
	return &token, nil
}

// Revoke marks the ledger rows matching the token hash revoked. Revoking an
// already-revoked token is a no-op. A non-empty accountID scopes the
// revocation to rows owned by that account.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash, accountID string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND ($2 = '' OR account_id::text = $2)
	`
	_, err := r.db.ExecContext(ctx, query, tokenHash, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll revokes every unrevoked ledger row for the account. Idempotent.
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, accountID string) error {
	query := `UPDATE refresh_tokens SET revoked_at = now() WHERE account_id = $1 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke all refresh tokens: %w", err)
	}
	return nil
}

// CountActive counts the unrevoked, unexpired rows for the account.
func (r *RefreshTokenRepository) CountActive(ctx context.Context, accountID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > now()
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active refresh tokens: %w", err)
	}
	return count, nil
}

// DeleteExpired prunes expired rows and revoked rows older than the
// retention window. This is cleanup, not a correctness requirement:
// validity never depends on rows having been pruned.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, revokedRetention time.Duration) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < now()
		   OR (revoked_at IS NOT NULL AND revoked_at < now() - $1::interval)
	`
	result, err := r.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int(revokedRetention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
