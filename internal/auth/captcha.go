package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/authvault/authvault/internal/config"
)

// CaptchaResult is the oracle's verdict on a challenge token.
type CaptchaResult struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// CaptchaClient talks to the external human-verification oracle. Transport
// errors, timeouts, and non-2xx responses are all reported as verification
// failure; the call is never retried.
type CaptchaClient struct {
	cfg    config.CaptchaConfig
	client *http.Client
}

// NewCaptchaClient creates a CaptchaClient with a bounded request timeout.
func NewCaptchaClient(cfg config.CaptchaConfig) *CaptchaClient {
	return &CaptchaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Verify submits the challenge token to the oracle. A score below the
// configured minimum fails verification even when the oracle reports success.
func (c *CaptchaClient) Verify(ctx context.Context, token, remoteIP string) CaptchaResult {
	form := url.Values{
		"secret":   {c.cfg.SecretKey},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return failedResult("request_build_failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return failedResult("verification_unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failedResult("verification_unavailable")
	}

	var result CaptchaResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failedResult("malformed_response")
	}

	if result.Success && result.Score != nil && *result.Score < c.cfg.MinScore {
		result.Success = false
		result.ErrorCodes = append(result.ErrorCodes, "score_below_threshold")
	}

	return result
}

func failedResult(code string) CaptchaResult {
	return CaptchaResult{Success: false, ErrorCodes: []string{code}}
}
