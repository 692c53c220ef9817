package model

// Session is the transient identity reconstructed from a valid access token.
// It is never stored server-side.
type Session struct {
	AccountID    string   `json:"accountId"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	IsVerified   bool     `json:"isVerified"`
	Capabilities []string `json:"capabilities"`
}
