package model

import "time"

// AuditLog is an append-only record of an authentication-relevant event.
// AccountID is nil for events with no resolvable account, such as a failed
// login against an unknown username.
type AuditLog struct {
	ID        string                 `json:"id"`
	AccountID *string                `json:"accountId,omitempty"`
	Action    string                 `json:"action"`
	IPAddress string                 `json:"ipAddress"`
	UserAgent string                 `json:"userAgent"`
	Success   bool                   `json:"success"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Audit action constants
const (
	AuditActionRegister      = "register"
	AuditActionLogin         = "login"
	AuditActionFailedLogin   = "failed_login"
	AuditActionAccountLocked = "account_locked"
	AuditActionTokenRefresh  = "token_refresh"
	AuditActionLogout        = "logout"
	AuditActionLogoutAll     = "logout_all"
	AuditActionDeactivated   = "account_deactivated"
)
