package domain

import "time"

// AuthorizationCode represents an OAuth 2.1 authorization code issuance.
// The plaintext code is never stored, only its SHA-256 fingerprint.
type AuthorizationCode struct {
	ID            string
	AuthRequestID string
	ClientID      string
	CodeHash      string
	RedirectURI   string
	Scopes        []string
	ExpiresAt     time.Time
	UsedAt        *time.Time
	CreatedAt     time.Time
}
