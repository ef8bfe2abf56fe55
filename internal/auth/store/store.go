package store

import (
	"context"
	"errors"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to actively stop callers from accidentally nesting
// transactions.
type Store interface {
	Clients() Clients
	AuthRequests() AuthRequests
	AuthorizationCodes() AuthorizationCodes
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Clients interface {
	// GetClientByID fetches a registered client for authentication and
	// redirect validation.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// CreateClient inserts a newly registered client (id is ULID;
	// secret_hash is empty for public clients).
	CreateClient(ctx context.Context, c domain.Client) error
}

type AuthRequests interface {
	// CreateAuthRequest stores a fresh pending request.
	CreateAuthRequest(ctx context.Context, r domain.AuthRequest) error

	// GetAuthRequest fetches a request by its opaque handle.
	GetAuthRequest(ctx context.Context, id string) (domain.AuthRequest, error)

	// CompleteAuthRequest atomically transitions pending -> authorized and
	// attaches the sealed user credential, guarded on the request not having
	// expired. Returns false if the request was not pending (already
	// completed, consumed, or expired) or the TTL had elapsed.
	CompleteAuthRequest(ctx context.Context, id string, userTokenEnc []byte, now time.Time) (bool, error)

	// ConsumeAuthRequest atomically transitions authorized -> consumed when
	// the authorization code is exchanged. Returns false if the request was
	// not in the authorized state.
	ConsumeAuthRequest(ctx context.Context, id string) (bool, error)

	// MarkExpiredAuthRequests flips past-TTL pending/authorized rows to
	// expired. Returns the number of rows transitioned.
	MarkExpiredAuthRequests(ctx context.Context, now time.Time) (int64, error)

	// DeleteAuthRequestsBefore purges terminal rows older than the cutoff.
	DeleteAuthRequestsBefore(ctx context.Context, cutoff time.Time) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its fingerprint when redeeming.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// MarkAuthorizationCodeUsed consumes a code, guarded on used_at still
	// being NULL. Returns false if the code was already used.
	MarkAuthorizationCodeUsed(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpiredAuthorizationCodes removes any codes that are no longer valid.
	DeleteExpiredAuthorizationCodes(ctx context.Context) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// ConsumeRefreshToken marks a token as rotated away, guarded on it not
	// being revoked or already consumed. Returns false if the guard failed.
	ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeRefreshToken flips revoked=1 on a single token.
	RevokeRefreshToken(ctx context.Context, id string) error

	// RevokeFamily revokes every token sharing a rotation family. Used when
	// a consumed token is presented again (theft signal).
	RevokeFamily(ctx context.Context, familyID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}
