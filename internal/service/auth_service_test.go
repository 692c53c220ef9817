package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/logger"
	"github.com/authvault/authvault/internal/model"
	"github.com/authvault/authvault/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]*model.Account)}
}

func (f *fakeAccountStore) Create(ctx context.Context, account *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == account.Username || a.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *account
	f.accounts[account.ID] = &cp
	return nil
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountStore) GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == identifier || a.Email == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountStore) FindConflict(ctx context.Context, username, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == username {
			return "username", nil
		}
		if a.Email == email {
			return "email", nil
		}
	}
	return "", nil
}

func (f *fakeAccountStore) RecordFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= maxAttempts {
		a.LockedUntil = &lockUntil
	}
	return a.FailedAttempts, a.LockedUntil, nil
}

func (f *fakeAccountStore) RecordSuccess(ctx context.Context, id string, newHash, newSalt *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	now := time.Now()
	a.LastLogin = &now
	if newHash != nil {
		a.PasswordHash = *newHash
	}
	if newSalt != nil {
		a.Salt = *newSalt
	}
	return nil
}

func (f *fakeAccountStore) ClearExpiredLock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.LockedUntil != nil && !time.Now().Before(*a.LockedUntil) {
		a.LockedUntil = nil
		a.FailedAttempts = 0
	}
	return nil
}

func (f *fakeAccountStore) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.IsActive = false
	return nil
}

type fakeTokenLedger struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken // keyed by token hash
}

func newFakeTokenLedger() *fakeTokenLedger {
	return &fakeTokenLedger{tokens: make(map[string]*model.RefreshToken)}
}

func (f *fakeTokenLedger) Create(ctx context.Context, token *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	f.tokens[token.TokenHash] = &cp
	return nil
}

func (f *fakeTokenLedger) GetActiveByHash(ctx context.Context, tokenHash, accountID string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok || !t.IsUsable() {
		return nil, repository.ErrNotFound
	}
	if accountID != "" && t.AccountID != accountID {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokenLedger) Revoke(ctx context.Context, tokenHash, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return nil
	}
	if accountID != "" && t.AccountID != accountID {
		return nil
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (f *fakeTokenLedger) RevokeAll(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, t := range f.tokens {
		if t.AccountID == accountID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeTokenLedger) CountActive(ctx context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, t := range f.tokens {
		if t.AccountID == accountID && t.IsUsable() {
			count++
		}
	}
	return count, nil
}

func (f *fakeTokenLedger) rows() []*model.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.RefreshToken, 0, len(f.tokens))
	for _, t := range f.tokens {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

type fakeAuditSink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (f *fakeAuditSink) Create(ctx context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAuditSink) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []model.AuditLog
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.AccountID != nil && *e.AccountID == accountID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeAuditSink) byAction(action string) []*model.AuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AuditLog
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeCaptcha struct {
	mu     sync.Mutex
	result auth.CaptchaResult
	calls  int
}

func (f *fakeCaptcha) Verify(ctx context.Context, token, remoteIP string) auth.CaptchaResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

// --- harness ---

type testEnv struct {
	svc      *AuthService
	accounts *fakeAccountStore
	ledger   *fakeTokenLedger
	audit    *fakeAuditSink
	captcha  *fakeCaptcha
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Security.Password = config.PasswordConfig{
		MinLength:         8,
		Argon2Memory:      8 * 1024,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
		BcryptCost:        bcrypt.MinCost,
	}
	cfg.Security.Tokens = config.TokenConfig{
		SecretKey:       "test-secret",
		Issuer:          "authvault-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
		SessionTTL:      24 * time.Hour,
	}
	cfg.Security.Lockout = config.LockoutConfig{
		MaxAttempts: 5,
		Duration:    30 * time.Minute,
	}

	hasher := auth.NewHasher(cfg.Security.Password)
	codec, err := auth.NewTokenCodec(cfg.Security.Tokens)
	require.NoError(t, err)

	accounts := newFakeAccountStore()
	ledger := newFakeTokenLedger()
	audit := &fakeAuditSink{}
	captcha := &fakeCaptcha{result: auth.CaptchaResult{Success: true}}

	svc := NewAuthService(accounts, ledger, audit, captcha, hasher, codec, cfg, logger.Nop())

	return &testEnv{
		svc:      svc,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		captcha:  captcha,
		cfg:      cfg,
	}
}

func (e *testEnv) register(t *testing.T, username, email, password string) *model.AccountSummary {
	t.Helper()
	summary, err := e.svc.Register(context.Background(), RegisterRequest{
		Username:     username,
		Email:        email,
		Password:     password,
		CaptchaToken: "ok",
		IPAddress:    "192.0.2.1",
		UserAgent:    "test-agent",
	})
	require.NoError(t, err)
	return summary
}

func (e *testEnv) login(identifier, password string, rememberMe bool) (*LoginResponse, error) {
	return e.svc.Login(context.Background(), LoginRequest{
		Identifier:   identifier,
		Password:     password,
		CaptchaToken: "ok",
		RememberMe:   rememberMe,
		IPAddress:    "192.0.2.1",
		UserAgent:    "test-agent",
	})
}

// --- registration ---

func TestRegisterSuccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, "alice", summary.Username)
	assert.True(t, summary.IsActive)
	assert.False(t, summary.IsVerified)

	// Stored credential is hashed, never plaintext.
	stored, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "long-enough-pass", stored.PasswordHash)
	assert.NotEmpty(t, stored.Salt)

	entries := env.audit.byAction(model.AuditActionRegister)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Username:     "different",
		Email:        "alice@example.com",
		Password:     "long-enough-pass",
		CaptchaToken: "ok",
	})
	assert.ErrorIs(t, err, ErrAccountExists)

	// The colliding field is recorded in the audit trail, not returned.
	entries := env.audit.byAction(model.AuditActionRegister)
	require.Len(t, entries, 2)
	assert.False(t, entries[1].Success)
	assert.Equal(t, "email", entries[1].Detail["field"])
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "a!", Email: "alice@example.com", Password: "long-enough-pass", CaptchaToken: "ok",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Register(context.Background(), RegisterRequest{
		Username: "alice", Email: "bad-email", Password: "long-enough-pass", CaptchaToken: "ok",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Register(context.Background(), RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "short", CaptchaToken: "ok",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterCaptchaFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.captcha.result = auth.CaptchaResult{Success: false, ErrorCodes: []string{"invalid-input-response"}}

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "long-enough-pass", CaptchaToken: "bad",
	})
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, env.accounts.accounts)
}

// --- login ---

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	resp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int((15 * time.Minute).Seconds()), resp.ExpiresIn)
	assert.Equal(t, summary.ID, resp.Account.ID)
	assert.NotNil(t, resp.Account.LastLogin)

	// Exactly one ledger row, keyed by hash, never the raw token.
	rows := env.ledger.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, auth.HashToken(resp.RefreshToken), rows[0].TokenHash)
	assert.NotEqual(t, resp.RefreshToken, rows[0].TokenHash)
}

func TestLoginByEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.login("alice@example.com", "long-enough-pass", false)
	assert.NoError(t, err)
}

func TestLoginUnknownAccountAndWrongPasswordIndistinguishable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, errUnknown := env.login("nobody", "long-enough-pass", false)
	_, errWrongPass := env.login("alice", "wrong-password-x", false)

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPass.Error())
}

func TestLoginCaptchaShortCircuitsBeforeLookup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")
	env.captcha.result = auth.CaptchaResult{Success: false}

	_, err := env.login("alice", "wrong-password-x", false)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// A failed challenge must not touch the failure counter.
	stored, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
}

func TestLoginInactiveAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")
	env.accounts.accounts[summary.ID].IsActive = false

	_, err := env.login("alice", "long-enough-pass", false)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

// --- lockout state machine ---

func TestLockoutAfterThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	// Four failures stay below the threshold.
	for i := 0; i < 4; i++ {
		_, err := env.login("alice", "wrong-password-x", false)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	stored, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.FailedAttempts)
	assert.False(t, stored.IsLocked())
	assert.Empty(t, env.audit.byAction(model.AuditActionAccountLocked))

	// The fifth failure trips the lock.
	_, err = env.login("alice", "wrong-password-x", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err = env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsLocked())
	assert.Len(t, env.audit.byAction(model.AuditActionAccountLocked), 1)
}

func TestLockedAccountRejectsCorrectPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	for i := 0; i < 5; i++ {
		env.login("alice", "wrong-password-x", false)
	}

	_, err := env.login("alice", "long-enough-pass", false)
	assert.ErrorIs(t, err, ErrAccountLocked)

	var locked *AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.True(t, locked.Until.After(time.Now()))
}

func TestExpiredLockClearsLazily(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	// Lock already elapsed.
	past := time.Now().Add(-1 * time.Minute)
	env.accounts.accounts[summary.ID].FailedAttempts = 5
	env.accounts.accounts[summary.ID].LockedUntil = &past

	resp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	stored, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	for i := 0; i < 3; i++ {
		env.login("alice", "wrong-password-x", false)
	}

	_, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	stored, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

// --- ledger expiry windows ---

func TestSessionWindowWithoutRememberMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	rows := env.ledger.rows()
	require.Len(t, rows, 1)
	expected := time.Now().Add(env.cfg.Security.Tokens.SessionTTL)
	assert.WithinDuration(t, expected, rows[0].ExpiresAt, time.Minute)
	assert.False(t, rows[0].DeviceInfo.RememberMe)
}

func TestExtendedWindowWithRememberMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.login("alice", "long-enough-pass", true)
	require.NoError(t, err)

	rows := env.ledger.rows()
	require.Len(t, rows, 1)
	expected := time.Now().Add(env.cfg.Security.Tokens.RefreshTokenTTL)
	assert.WithinDuration(t, expected, rows[0].ExpiresAt, time.Minute)
	assert.True(t, rows[0].DeviceInfo.RememberMe)
}

// --- refresh ---

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	resp, err := env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	// The refresh token is not rotated: the same one keeps working.
	_, err = env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	assert.NoError(t, err)
	assert.Len(t, env.ledger.rows(), 1)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	_, err = env.svc.Refresh(context.Background(), loginResp.AccessToken, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(context.Background(), loginResp.RefreshToken, summary.ID, "192.0.2.1", "test-agent"))

	_, err = env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenNotRecognized)
}

func TestRefreshRejectsExpiredLedgerRow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	// The JWT is still valid but the ledger row has expired; the ledger wins.
	hash := auth.HashToken(loginResp.RefreshToken)
	env.ledger.tokens[hash].ExpiresAt = time.Now().Add(-1 * time.Minute)

	_, err = env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenNotRecognized)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	// A well-formed refresh token that never went through Login has no
	// ledger row and must be rejected.
	codec, err := auth.NewTokenCodec(env.cfg.Security.Tokens)
	require.NoError(t, err)
	stray, err := codec.CreateRefreshToken(summary.ID)
	require.NoError(t, err)

	_, err = env.svc.Refresh(context.Background(), stray, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenNotRecognized)
}

func TestRefreshRejectsDeactivatedAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	env.accounts.accounts[summary.ID].IsActive = false

	_, err = env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrAccountInactive)
}

// --- logout ---

func TestLogoutRevokesSingleToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	first, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)
	second, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(context.Background(), first.RefreshToken, summary.ID, "192.0.2.1", "test-agent"))

	_, err = env.svc.Refresh(context.Background(), first.RefreshToken, "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenNotRecognized)

	// The other session is untouched.
	_, err = env.svc.Refresh(context.Background(), second.RefreshToken, "192.0.2.1", "test-agent")
	assert.NoError(t, err)
}

func TestLogoutUnknownTokenIsNoop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	err := env.svc.Logout(context.Background(), "never-issued", summary.ID, "192.0.2.1", "test-agent")
	assert.NoError(t, err)
}

func TestLogoutAllIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	for i := 0; i < 3; i++ {
		_, err := env.login("alice", "long-enough-pass", false)
		require.NoError(t, err)
	}

	require.NoError(t, env.svc.LogoutAll(context.Background(), summary.ID, "192.0.2.1", "test-agent"))

	count, err := env.ledger.CountActive(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Second call is a no-op, not an error.
	assert.NoError(t, env.svc.LogoutAll(context.Background(), summary.ID, "192.0.2.1", "test-agent"))
}

// --- introspection ---

func TestIntrospect(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	session, err := env.svc.Introspect(context.Background(), loginResp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, session.AccountID)
	assert.Equal(t, "alice", session.Username)
	assert.NotNil(t, session.Capabilities)

	_, err = env.svc.Introspect(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Deactivation takes effect before token expiry.
	env.accounts.accounts[summary.ID].IsActive = false
	_, err = env.svc.Introspect(context.Background(), loginResp.AccessToken)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestSecurityInfo(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)
	env.login("alice", "wrong-password-x", false)
	env.login("alice", "wrong-password-x", false)

	info, err := env.svc.SecurityInfo(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.FailedAttempts)
	assert.False(t, info.IsLocked)
	assert.Nil(t, info.LockedUntil)
	assert.Equal(t, 1, info.ActiveSessions)
	assert.NotNil(t, info.LastLogin)
}

func TestRecentActivity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	_, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)
	env.login("alice", "wrong-password-x", false)

	entries, err := env.svc.RecentActivity(context.Background(), summary.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, model.AuditActionFailedLogin, entries[0].Action)
	assert.Equal(t, model.AuditActionLogin, entries[1].Action)
	assert.Equal(t, model.AuditActionRegister, entries[2].Action)

	entries, err = env.svc.RecentActivity(context.Background(), summary.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditActionFailedLogin, entries[0].Action)
}

func TestDeactivateAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	loginResp, err := env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeactivateAccount(context.Background(), summary.ID, "192.0.2.1", "test-agent"))

	// Refresh tokens are revoked and the credential stops working.
	_, err = env.svc.Refresh(context.Background(), loginResp.RefreshToken, "192.0.2.1", "test-agent")
	assert.Error(t, err)
	_, err = env.login("alice", "long-enough-pass", false)
	assert.ErrorIs(t, err, ErrAccountInactive)

	entries := env.audit.byAction(model.AuditActionDeactivated)
	require.Len(t, entries, 1)
	assert.Equal(t, summary.ID, *entries[0].AccountID)

	err = env.svc.DeactivateAccount(context.Background(), "missing-id", "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

// --- audit trail ---

func TestAuditTrailCoversLoginOutcomes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com", "long-enough-pass")

	env.login("nobody", "long-enough-pass", false)
	env.login("alice", "wrong-password-x", false)
	env.login("alice", "long-enough-pass", false)

	failed := env.audit.byAction(model.AuditActionFailedLogin)
	require.Len(t, failed, 2)
	// Unknown identifier yields an entry with no account reference.
	assert.Nil(t, failed[0].AccountID)
	assert.NotNil(t, failed[1].AccountID)

	succeeded := env.audit.byAction(model.AuditActionLogin)
	require.Len(t, succeeded, 1)
	assert.True(t, succeeded[0].Success)
}

func TestBcryptHashUpgradedOnLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	summary := env.register(t, "alice", "alice@example.com", "long-enough-pass")

	// Swap in a legacy bcrypt credential.
	stored := env.accounts.accounts[summary.ID]
	raw, err := bcrypt.GenerateFromPassword([]byte("long-enough-pass"+stored.Salt), bcrypt.MinCost)
	require.NoError(t, err)
	stored.PasswordHash = string(raw)

	_, err = env.login("alice", "long-enough-pass", false)
	require.NoError(t, err)

	upgraded, err := env.accounts.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Contains(t, upgraded.PasswordHash, "$argon2id$")
}
