package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/model"
	"github.com/lib/pq"
)

// AccountRepository is the persisted credential store.
type AccountRepository struct {
	db *database.Postgres
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.Postgres) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account. A unique-index collision on username or
// email is reported as ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, salt,
		    is_active, is_verified, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Salt,
		account.IsActive,
		account.IsVerified,
		account.FailedAttempts,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its opaque identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `
		SELECT id, username, email, password_hash, salt, is_active, is_verified,
		       failed_attempts, locked_until, created_at, updated_at, last_login
		FROM accounts
		WHERE id = $1
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsernameOrEmail retrieves an account whose username or email exactly
// matches the identifier (case-sensitive on both columns).
func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error) {
	query := `
		SELECT id, username, email, password_hash, salt, is_active, is_verified,
		       failed_attempts, locked_until, created_at, updated_at, last_login
		FROM accounts
		WHERE username = $1 OR email = $1
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, identifier))
}

// FindConflict reports which field ("username" or "email") an existing
// account collides on, or an empty string when both are free.
func (r *AccountRepository) FindConflict(ctx context.Context, username, email string) (string, error) {
	query := `SELECT username, email FROM accounts WHERE username = $1 OR email = $2 LIMIT 1`
	var existingUsername, existingEmail string
	err := r.db.QueryRowContext(ctx, query, username, email).Scan(&existingUsername, &existingEmail)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check account conflict: %w", err)
	}
	if existingUsername == username {
		return "username", nil
	}
	return "email", nil
}

// RecordFailure atomically increments the failed-attempt counter and, in the
// same statement, sets the lock expiry when the post-increment counter
// reaches the threshold. Two concurrent failures can never both observe a
// pre-lock counter and jointly skip the lock.
func (r *AccountRepository) RecordFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`
	var attempts int
	var lockedUntil *time.Time
	err := r.db.QueryRowContext(ctx, query, id, maxAttempts, lockUntil).Scan(&attempts, &lockedUntil)
	if err == sql.ErrNoRows {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return attempts, lockedUntil, nil
}

// RecordSuccess resets the failure counter, clears the lock, stamps the
// login time, and optionally swaps in a rehashed credential, in one update.
func (r *AccountRepository) RecordSuccess(ctx context.Context, id string, newHash, newSalt *string) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0,
		    locked_until = NULL,
		    last_login = now(),
		    password_hash = COALESCE($2, password_hash),
		    salt = COALESCE($3, salt),
		    updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, newHash, newSalt)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearExpiredLock drops a lock expiry that has been observed to be in the
// past. The counter is left intact until the next success or threshold.
func (r *AccountRepository) ClearExpiredLock(ctx context.Context, id string) error {
	query := `UPDATE accounts SET locked_until = NULL, updated_at = now() WHERE id = $1 AND locked_until <= now()`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear expired lock: %w", err)
	}
	return nil
}

// Deactivate soft-disables an account. Accounts are never hard-deleted.
func (r *AccountRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE accounts SET is_active = false, updated_at = now() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAccount scans a single account row
func scanAccount(row *sql.Row) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Salt,
		&account.IsActive,
		&account.IsVerified,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.LastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &account, nil
}
