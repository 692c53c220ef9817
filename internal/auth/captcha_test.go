package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/authvault/authvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptchaTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func captchaClientFor(srv *httptest.Server, minScore float64) *CaptchaClient {
	return NewCaptchaClient(config.CaptchaConfig{
		SecretKey: "oracle-secret",
		VerifyURL: srv.URL,
		MinScore:  minScore,
		Timeout:   2 * time.Second,
	})
}

func TestCaptchaVerifySuccess(t *testing.T) {
	t.Parallel()

	srv := newCaptchaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "oracle-secret", r.FormValue("secret"))
		assert.Equal(t, "challenge-token", r.FormValue("response"))
		assert.Equal(t, "192.0.2.1", r.FormValue("remoteip"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"score":0.9}`))
	})

	result := captchaClientFor(srv, 0.5).Verify(context.Background(), "challenge-token", "192.0.2.1")
	assert.True(t, result.Success)
}

func TestCaptchaVerifyFailure(t *testing.T) {
	t.Parallel()

	srv := newCaptchaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	})

	result := captchaClientFor(srv, 0.5).Verify(context.Background(), "bad-token", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorCodes, "invalid-input-response")
}

func TestCaptchaScoreBelowThreshold(t *testing.T) {
	t.Parallel()

	srv := newCaptchaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"score":0.2}`))
	})

	result := captchaClientFor(srv, 0.5).Verify(context.Background(), "challenge-token", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorCodes, "score_below_threshold")
}

func TestCaptchaOracleUnavailable(t *testing.T) {
	t.Parallel()

	srv := newCaptchaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result := captchaClientFor(srv, 0.5).Verify(context.Background(), "challenge-token", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorCodes, "verification_unavailable")
}

func TestCaptchaOracleUnreachable(t *testing.T) {
	t.Parallel()

	client := NewCaptchaClient(config.CaptchaConfig{
		SecretKey: "oracle-secret",
		VerifyURL: "http://127.0.0.1:1/siteverify",
		MinScore:  0.5,
		Timeout:   500 * time.Millisecond,
	})

	result := client.Verify(context.Background(), "challenge-token", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorCodes, "verification_unavailable")
}

func TestCaptchaMalformedResponse(t *testing.T) {
	t.Parallel()

	srv := newCaptchaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	result := captchaClientFor(srv, 0.5).Verify(context.Background(), "challenge-token", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorCodes, "malformed_response")
}
