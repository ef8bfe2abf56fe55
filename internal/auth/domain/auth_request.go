package domain

import "time"

// AuthRequestStatus is the lifecycle state of a pending authorization request.
type AuthRequestStatus string

const (
	// AuthRequestPending is the initial state: the browser flow has started
	// but no user credential has arrived yet.
	AuthRequestPending AuthRequestStatus = "pending"

	// AuthRequestAuthorized means the browser callback delivered a user
	// credential and an authorization code may be issued.
	AuthRequestAuthorized AuthRequestStatus = "authorized"

	// AuthRequestConsumed means the authorization code minted for this
	// request has been exchanged at the token endpoint.
	AuthRequestConsumed AuthRequestStatus = "consumed"

	// AuthRequestExpired means the request outlived its TTL before the
	// flow finished. Terminal.
	AuthRequestExpired AuthRequestStatus = "expired"
)

// AuthRequest correlates the synchronous OAuth redirect flow with the
// asynchronous browser-side user authentication. Its ID is the opaque
// 128-bit handle embedded in the authentication page.
type AuthRequest struct {
	ID       string
	ClientID string

	// RedirectURI is a snapshot of the redirect taken when the request was
	// created; later changes to the client's registration do not affect it.
	RedirectURI string

	Scopes []string
	State  string

	CodeChallenge       string
	CodeChallengeMethod string // "S256" or "plain"

	Status AuthRequestStatus

	// UserTokenEnc is the AES-GCM sealed user credential, set when the
	// request transitions to authorized. Never exposed outside the core.
	UserTokenEnc []byte

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the request's TTL has elapsed at the given instant.
func (r AuthRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
