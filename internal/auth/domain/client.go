package domain

import "time"

// Token endpoint authentication methods supported for registered clients.
const (
	AuthMethodClientSecretPost = "client_secret_post"
	AuthMethodNone             = "none"
)

// Client is a dynamically registered OAuth2 client (RFC 7591).
type Client struct {
	ID           string
	Name         string
	SecretHash   string // argon2id PHC string; empty for public clients
	RedirectURIs []string
	AuthMethod   string // client_secret_post or none
	Scopes       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public reports whether the client authenticates without a secret.
// Public clients must use PKCE on the authorization code grant.
func (c Client) Public() bool {
	return c.AuthMethod == AuthMethodNone
}
