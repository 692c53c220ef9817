package service

import (
	"context"
	"time"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/model"
)

// AccountStore is the persisted credential store the engine reads and
// mutates. Implemented by repository.AccountRepository; tests use fakes.
type AccountStore interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error)
	FindConflict(ctx context.Context, username, email string) (string, error)
	// RecordFailure must apply the increment and the threshold lock in one
	// atomic read-modify-write against the account row.
	RecordFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	RecordSuccess(ctx context.Context, id string, newHash, newSalt *string) error
	ClearExpiredLock(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

// TokenLedger is the persisted, revocable record of issued refresh tokens.
// Implemented by repository.RefreshTokenRepository.
type TokenLedger interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetActiveByHash(ctx context.Context, tokenHash, accountID string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash, accountID string) error
	RevokeAll(ctx context.Context, accountID string) error
	CountActive(ctx context.Context, accountID string) (int, error)
}

// AuditSink receives the append-only audit trail.
// Implemented by repository.AuditRepository.
type AuditSink interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.AuditLog, error)
}

// CaptchaVerifier is the external human-verification oracle.
// Implemented by auth.CaptchaClient.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) auth.CaptchaResult
}
