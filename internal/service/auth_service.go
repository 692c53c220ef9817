package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/logger"
	"github.com/authvault/authvault/internal/model"
	"github.com/authvault/authvault/internal/repository"
	"github.com/google/uuid"
)

// Common service errors
var (
	ErrVerificationFailed = errors.New("human verification failed")
	ErrAccountExists      = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is disabled")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrTokenInvalid       = auth.ErrTokenInvalid
	ErrTokenNotRecognized = errors.New("refresh token is expired, revoked, or unknown")
	ErrValidation         = errors.New("validation failed")
)

// AccountLockedError carries the unlock time. The lock status and its expiry
// are the only failure detail deliberately disclosed to callers.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked until %s", e.Until.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAccountLocked) hold for lock errors.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// AuthService is the authentication engine. It owns the lockout state
// machine and composes the credential store, hashing service, token codec,
// refresh-token ledger, audit sink, and human-verification oracle. It holds
// no mutable state of its own between requests.
type AuthService struct {
	accounts AccountStore
	ledger   TokenLedger
	audit    AuditSink
	captcha  CaptchaVerifier
	hasher   *auth.Hasher
	codec    *auth.TokenCodec
	cfg      *config.Config
	log      *logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	accounts AccountStore,
	ledger TokenLedger,
	audit AuditSink,
	captcha CaptchaVerifier,
	hasher *auth.Hasher,
	codec *auth.TokenCodec,
	cfg *config.Config,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		captcha:  captcha,
		hasher:   hasher,
		codec:    codec,
		cfg:      cfg,
		log:      log.WithComponent("auth_service"),
	}
}

// RegisterRequest contains the data for registering a new account
type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	CaptchaToken string
	IPAddress    string
	UserAgent    string
}

// Register creates a new account
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.AccountSummary, error) {
	if err := auth.ValidateUsername(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := auth.ValidatePassword(req.Password, s.cfg.Security.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	// Human verification runs before any account state is consulted.
	captcha := s.captcha.Verify(ctx, req.CaptchaToken, req.IPAddress)
	if !captcha.Success {
		s.logAudit(ctx, nil, model.AuditActionRegister, req.IPAddress, req.UserAgent, false, map[string]interface{}{
			"error":          "captcha_failed",
			"captcha_errors": captcha.ErrorCodes,
		})
		return nil, ErrVerificationFailed
	}

	// The colliding field goes to the audit trail only, never to the caller.
	conflict, err := s.accounts.FindConflict(ctx, req.Username, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check account conflict: %w", err)
	}
	if conflict != "" {
		s.logAudit(ctx, nil, model.AuditActionRegister, req.IPAddress, req.UserAgent, false, map[string]interface{}{
			"error": "account_exists",
			"field": conflict,
		})
		return nil, ErrAccountExists
	}

	hash, salt, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Salt:         salt,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// Lost the race against a concurrent registration.
		if errors.Is(err, repository.ErrDuplicate) {
			s.logAudit(ctx, nil, model.AuditActionRegister, req.IPAddress, req.UserAgent, false, map[string]interface{}{
				"error": "account_exists",
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logAudit(ctx, &account.ID, model.AuditActionRegister, req.IPAddress, req.UserAgent, true, map[string]interface{}{
		"username": req.Username,
		"email":    req.Email,
	})

	s.log.Info().Str("account_id", account.ID).Str("username", req.Username).Msg("account registered")

	summary := account.Summary()
	return &summary, nil
}

// LoginRequest contains the data for a login attempt
type LoginRequest struct {
	Identifier   string // username or email
	Password     string
	CaptchaToken string
	RememberMe   bool
	IPAddress    string
	UserAgent    string
}

// LoginResponse contains the issued token pair
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	TokenType    string               `json:"tokenType"`
	ExpiresIn    int                  `json:"expiresIn"`
	Account      model.AccountSummary `json:"account"`
}

// Login authenticates an account and issues a token pair. The evaluation
// order is fixed: human verification, account lookup, active check, lock
// check, password check. Earlier failures must not leak later state.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	// 1. Human verification, before the account lookup so that a failed
	// challenge reveals nothing about whether the account exists.
	captcha := s.captcha.Verify(ctx, req.CaptchaToken, req.IPAddress)
	if !captcha.Success {
		s.logAudit(ctx, nil, model.AuditActionFailedLogin, req.IPAddress, req.UserAgent, false, map[string]interface{}{
			"error":          "captcha_failed",
			"identifier":     req.Identifier,
			"captcha_errors": captcha.ErrorCodes,
		})
		return nil, ErrVerificationFailed
	}

	// 2. Lookup by username or email, exact match on either.
	account, err := s.accounts.GetByUsernameOrEmail(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logAudit(ctx, nil, model.AuditActionFailedLogin, req.IPAddress, req.UserAgent, false, map[string]interface{}{
				"error":      "account_not_found",
				"identifier": req.Identifier,
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	// 3. Deactivated accounts are rejected regardless of lock state.
	if !account.IsActive {
		s.logAudit(ctx, &account.ID, model.AuditActionFailedLogin, req.IPAddress, req.UserAgent, false, map[string]interface{}{
			"error": "account_inactive",
		})
		return nil, ErrAccountInactive
	}

	// 4. Lock check. Unlocking is lazy: an expired lock is cleared when
	// observed, there is no background timer.
	if account.LockedUntil != nil {
		if account.IsLocked() {
			s.logAudit(ctx, &account.ID, model.AuditActionFailedLogin, req.IPAddress, req.UserAgent, false, map[string]interface{}{
				"error":        "account_locked",
				"locked_until": account.LockedUntil.Format(time.RFC3339),
			})
			return nil, &AccountLockedError{Until: *account.LockedUntil}
		}
		if err := s.accounts.ClearExpiredLock(ctx, account.ID); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to clear expired lock")
		}
	}

	// 5. Password verification.
	if !s.hasher.Verify(req.Password, account.PasswordHash, account.Salt) {
		return nil, s.handleFailedPassword(ctx, account, req)
	}

	// 6. Success: reset counters, clear lock, stamp login time, and
	// opportunistically upgrade an outdated hash.
	var newHash, newSalt *string
	if s.hasher.NeedsRehash(account.PasswordHash) {
		if hash, salt, hashErr := s.hasher.Hash(req.Password); hashErr == nil {
			newHash, newSalt = &hash, &salt
		} else {
			s.log.Error().Err(hashErr).Str("account_id", account.ID).Msg("failed to rehash password")
		}
	}

	if err := s.accounts.RecordSuccess(ctx, account.ID, newHash, newSalt); err != nil {
		return nil, fmt.Errorf("failed to record login success: %w", err)
	}

	accessToken, err := s.codec.CreateAccessToken(account.ID, account.Username, account.Email, account.IsVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := s.codec.CreateRefreshToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	if err := s.storeRefreshToken(ctx, account.ID, refreshToken, req); err != nil {
		return nil, err
	}

	s.logAudit(ctx, &account.ID, model.AuditActionLogin, req.IPAddress, req.UserAgent, true, map[string]interface{}{
		"username":    account.Username,
		"remember_me": req.RememberMe,
	})

	s.log.Info().Str("account_id", account.ID).Str("username", account.Username).Msg("login succeeded")

	now := time.Now()
	account.LastLogin = &now
	account.FailedAttempts = 0
	account.LockedUntil = nil

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.codec.AccessTokenTTL().Seconds()),
		Account:      account.Summary(),
	}, nil
}

// handleFailedPassword applies the failure counter and the threshold lock
// atomically, then audits the attempt.
func (s *AuthService) handleFailedPassword(ctx context.Context, account *model.Account, req LoginRequest) error {
	maxAttempts := s.cfg.Security.Lockout.MaxAttempts
	lockUntil := time.Now().Add(s.cfg.Security.Lockout.Duration)

	attempts, lockedUntil, err := s.accounts.RecordFailure(ctx, account.ID, maxAttempts, lockUntil)
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}

	if attempts >= maxAttempts && lockedUntil != nil && time.Now().Before(*lockedUntil) {
		s.logAudit(ctx, &account.ID, model.AuditActionAccountLocked, req.IPAddress, req.UserAgent, true, map[string]interface{}{
			"attempts":     attempts,
			"locked_until": lockedUntil.Format(time.RFC3339),
		})
		s.log.Warn().
			Str("account_id", account.ID).
			Int("attempts", attempts).
			Time("locked_until", *lockedUntil).
			Msg("account locked after repeated failures")
	}

	s.logAudit(ctx, &account.ID, model.AuditActionFailedLogin, req.IPAddress, req.UserAgent, false, map[string]interface{}{
		"error":    "invalid_password",
		"attempts": attempts,
	})

	return ErrInvalidCredentials
}

// storeRefreshToken persists the ledger row for a freshly minted refresh
// token. Without remember-me the row expires after the short session window
// even though the token itself encodes the long expiry; the ledger's row is
// what decides usability.
func (s *AuthService) storeRefreshToken(ctx context.Context, accountID, refreshToken string, req LoginRequest) error {
	expiry := s.cfg.Security.Tokens.SessionTTL
	if req.RememberMe {
		expiry = s.cfg.Security.Tokens.RefreshTokenTTL
	}

	now := time.Now()
	record := &model.RefreshToken{
		ID:        uuid.New().String(),
		AccountID: accountID,
		TokenHash: auth.HashToken(refreshToken),
		DeviceInfo: model.DeviceInfo{
			UserAgent:  auth.SanitizeUserAgent(req.UserAgent),
			IPAddress:  req.IPAddress,
			RememberMe: req.RememberMe,
		},
		IPAddress: req.IPAddress,
		ExpiresAt: now.Add(expiry),
		CreatedAt: now,
	}

	if err := s.ledger.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// RefreshResponse contains a freshly minted access token
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated. The presented token must decode as
// type=refresh and have a live ledger row scoped to its own subject.
func (s *AuthService) Refresh(ctx context.Context, rawToken, ipAddress, userAgent string) (*RefreshResponse, error) {
	claims, err := s.codec.Verify(rawToken, auth.TokenTypeRefresh)
	if err != nil {
		s.logAudit(ctx, nil, model.AuditActionTokenRefresh, ipAddress, userAgent, false, map[string]interface{}{
			"error": "token_invalid",
		})
		return nil, ErrTokenInvalid
	}

	tokenHash := auth.HashToken(rawToken)
	record, err := s.ledger.GetActiveByHash(ctx, tokenHash, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logAudit(ctx, &claims.Subject, model.AuditActionTokenRefresh, ipAddress, userAgent, false, map[string]interface{}{
				"error": "token_not_recognized",
			})
			return nil, ErrTokenNotRecognized
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	// Defense in depth: re-check the hash match in constant time.
	if !auth.VerifyTokenHash(rawToken, record.TokenHash) {
		return nil, ErrTokenNotRecognized
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logAudit(ctx, &claims.Subject, model.AuditActionTokenRefresh, ipAddress, userAgent, false, map[string]interface{}{
				"error": "account_missing",
			})
			return nil, ErrTokenNotRecognized
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !account.IsActive {
		s.logAudit(ctx, &account.ID, model.AuditActionTokenRefresh, ipAddress, userAgent, false, map[string]interface{}{
			"error": "account_inactive",
		})
		return nil, ErrAccountInactive
	}

	accessToken, err := s.codec.CreateAccessToken(account.ID, account.Username, account.Email, account.IsVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	s.logAudit(ctx, &account.ID, model.AuditActionTokenRefresh, ipAddress, userAgent, true, map[string]interface{}{
		"username": account.Username,
	})

	return &RefreshResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.codec.AccessTokenTTL().Seconds()),
	}, nil
}

// Logout revokes the ledger row for the presented refresh token, scoped to
// the calling account so a guessed hash can never revoke someone else's
// session. Revoking an already-revoked or unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, rawToken, accountID, ipAddress, userAgent string) error {
	tokenHash := auth.HashToken(rawToken)

	if err := s.ledger.Revoke(ctx, tokenHash, accountID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if accountID != "" {
		s.logAudit(ctx, &accountID, model.AuditActionLogout, ipAddress, userAgent, true, nil)
	}
	return nil
}

// LogoutAll revokes every ledger row for the account. Idempotent: a second
// call is a no-op, not an error.
func (s *AuthService) LogoutAll(ctx context.Context, accountID, ipAddress, userAgent string) error {
	if err := s.ledger.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	s.logAudit(ctx, &accountID, model.AuditActionLogoutAll, ipAddress, userAgent, true, nil)
	return nil
}

// Introspect reconstructs the transient session from an access token. The
// account is reloaded so tokens of deactivated accounts stop working
// immediately rather than at expiry.
func (s *AuthService) Introspect(ctx context.Context, accessToken string) (*model.Session, error) {
	claims, err := s.codec.Verify(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	return &model.Session{
		AccountID:    account.ID,
		Username:     account.Username,
		Email:        account.Email,
		IsVerified:   account.IsVerified,
		Capabilities: []string{},
	}, nil
}

// SecurityInfo returns the account's security state, including the number
// of live refresh-token sessions.
func (s *AuthService) SecurityInfo(ctx context.Context, accountID string) (*model.SecurityInfo, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	sessions, err := s.ledger.CountActive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	info := &model.SecurityInfo{
		FailedAttempts: account.FailedAttempts,
		IsLocked:       account.IsLocked(),
		LastLogin:      account.LastLogin,
		ActiveSessions: sessions,
	}
	if info.IsLocked {
		info.LockedUntil = account.LockedUntil
	}
	return info, nil
}

// RecentActivity returns the account's most recent audit entries, newest
// first. A non-positive limit falls back to the sink's default page size.
func (s *AuthService) RecentActivity(ctx context.Context, accountID string, limit int) ([]model.AuditLog, error) {
	entries, err := s.audit.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// DeactivateAccount soft-disables the account and revokes every live
// refresh token. Outstanding access tokens stop working on their next
// introspection. Deactivation is not reversible through the public API.
func (s *AuthService) DeactivateAccount(ctx context.Context, accountID, ipAddress, userAgent string) error {
	if err := s.accounts.Deactivate(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to deactivate account: %w", err)
	}

	if err := s.ledger.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	s.logAudit(ctx, &accountID, model.AuditActionDeactivated, ipAddress, userAgent, true, nil)
	return nil
}

// logAudit appends an audit entry. A sink failure is logged but does not
// fail the request; counter state and lock state always agree because they
// are written in the same statement, the audit row is best-effort.
func (s *AuthService) logAudit(ctx context.Context, accountID *string, action, ipAddress, userAgent string, success bool, detail map[string]interface{}) {
	entry := &model.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		IPAddress: ipAddress,
		UserAgent: auth.SanitizeUserAgent(userAgent),
		Success:   success,
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}
