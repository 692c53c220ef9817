package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/authvault/authvault/internal/middleware"
	"github.com/authvault/authvault/internal/service"
)

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	errBody := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errBody["details"] = details
	}
	writeJSON(w, status, map[string]interface{}{"error": errBody})
}

// writeInternalError hides the cause from the client and logs it with the
// request ID so the two can be correlated.
func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	requestID := middleware.GetRequestID(r.Context())
	h.log.Error().Err(err).Str("request_id", requestID).Str("operation", operation).Msg("Request failed")
	writeErrorWithDetails(w, http.StatusInternalServerError, "internal_error", "An internal error occurred", map[string]interface{}{
		"request_id": requestID,
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// --- Register Handler ---

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
}

// Register handles account registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Username, email and password are required")
		return
	}

	summary, err := h.authSvc.Register(r.Context(), service.RegisterRequest{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		IPAddress:    getClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, service.ErrVerificationFailed):
			writeError(w, http.StatusBadRequest, "captcha_failed", "Human verification failed")
		case errors.Is(err, service.ErrAccountExists):
			writeError(w, http.StatusConflict, "account_exists", "An account with this username or email already exists")
		default:
			h.writeInternalError(w, r, err, "register")
		}
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// --- Login Handler ---

type loginRequest struct {
	Identifier   string `json:"identifier"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
	RememberMe   bool   `json:"rememberMe,omitempty"`
}

// Login handles credential authentication and issues a token pair
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Identifier and password are required")
		return
	}

	resp, err := h.authSvc.Login(r.Context(), service.LoginRequest{
		Identifier:   req.Identifier,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RememberMe:   req.RememberMe,
		IPAddress:    getClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		var locked *service.AccountLockedError
		switch {
		case errors.Is(err, service.ErrVerificationFailed):
			writeError(w, http.StatusBadRequest, "captcha_failed", "Human verification failed")
		case errors.As(err, &locked):
			// The lock and its expiry are the only failure detail disclosed.
			writeErrorWithDetails(w, http.StatusLocked, "account_locked", "Account is temporarily locked due to repeated failed logins", map[string]interface{}{
				"lockedUntil": locked.Until.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			// Unknown identifier and wrong password answer identically.
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		case errors.Is(err, service.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "account_disabled", "This account has been disabled")
		default:
			h.writeInternalError(w, r, err, "login")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Token Refresh Handler ---

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a refresh token for a new access token
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Refresh token is required")
		return
	}

	resp, err := h.authSvc.Refresh(r.Context(), req.RefreshToken, getClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrTokenNotRecognized):
			writeError(w, http.StatusUnauthorized, "invalid_token", "Refresh token is invalid or no longer accepted")
		case errors.Is(err, service.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "account_disabled", "This account has been disabled")
		default:
			h.writeInternalError(w, r, err, "token_refresh")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Logout Handlers ---

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes a single refresh token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Refresh token is required")
		return
	}

	accountID := middleware.GetAccountID(r.Context())
	if err := h.authSvc.Logout(r.Context(), req.RefreshToken, accountID, getClientIP(r), r.UserAgent()); err != nil {
		h.writeInternalError(w, r, err, "logout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// LogoutAll revokes every active refresh token of the authenticated account
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.authSvc.LogoutAll(r.Context(), accountID, getClientIP(r), r.UserAgent()); err != nil {
		h.writeInternalError(w, r, err, "logout_all")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "All sessions terminated"})
}

// --- Current Account Handlers ---

// GetCurrentUser returns the identity behind the presented access token
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	session, err := h.authSvc.Introspect(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenInvalid):
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		case errors.Is(err, service.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "account_disabled", "This account has been disabled")
		default:
			h.writeInternalError(w, r, err, "introspect")
		}
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetSecurityInfo returns the security posture of the authenticated account
func (h *Handler) GetSecurityInfo(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	info, err := h.authSvc.SecurityInfo(r.Context(), accountID)
	if err != nil {
		h.writeInternalError(w, r, err, "security_info")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// GetActivity returns the authenticated account's recent audit trail
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	entries, err := h.authSvc.RecentActivity(r.Context(), accountID, limit)
	if err != nil {
		h.writeInternalError(w, r, err, "activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

// DeactivateAccount disables the authenticated account and revokes its
// refresh tokens
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	err := h.authSvc.DeactivateAccount(r.Context(), accountID, getClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}
		h.writeInternalError(w, r, err, "deactivate_account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deactivated"})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}
