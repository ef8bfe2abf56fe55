package domain

import "time"

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
	Scope        string        `json:"scope,omitempty"`      // space-delimited
}

// RefreshToken models the stored refresh token record in the DB.
// Tokens minted by rotation share the FamilyID of the token they replaced;
// a reuse of an already-consumed member revokes the whole family.
type RefreshToken struct {
	ID            string
	ClientID      string
	AuthRequestID string
	TokenHash     string // deterministic fingerprint (base64url SHA-256)
	FamilyID      string
	Scopes        []string

	// UserTokenEnc is the sealed user credential, carried forward across
	// rotations so each new access token can embed it.
	UserTokenEnc []byte

	ExpiresAt  time.Time
	ConsumedAt *time.Time // set when rotated away
	Revoked    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Active reports whether the token can still be exchanged at the given instant.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
