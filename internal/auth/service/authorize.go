package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
	"github.com/tunegate/tunegate/internal/auth/store"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/slogx"
)

var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrUnauthorizedRedirect = errors.New("unauthorized_redirect_uri")
	ErrRequestNotFound      = errors.New("authorization request not found")
	ErrRequestExpired       = errors.New("authorization request expired")
	ErrAlreadyCompleted     = errors.New("authorization request already completed")
)

// DefaultAuthRequestTTL bounds how long the browser flow may take.
const DefaultAuthRequestTTL = 10 * time.Minute

// AuthorizeService coordinates the two halves of the hybrid flow: the
// synchronous authorization redirect that creates a pending request, and the
// asynchronous browser callback that completes it with a user credential.
type AuthorizeService struct {
	Store      store.Store
	Sealer     *cryptox.Sealer
	RequestTTL time.Duration
}

// BeginParams captures the validated query parameters of an authorization
// request.
type BeginParams struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Begin validates an authorization request and persists it as pending.
//
// The redirect URI is snapshotted into the request row: changes to the
// client's registration after this point do not affect the in-flight flow.
// The returned request's ID is the opaque handle the authentication page
// embeds for the browser callback.
func (s *AuthorizeService) Begin(ctx context.Context, p BeginParams) (domain.AuthRequest, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(p.ClientID) == "" || strings.TrimSpace(p.RedirectURI) == "" {
		return domain.AuthRequest{}, ErrInvalidRequest
	}

	client, err := s.Store.Clients().GetClientByID(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, ErrInvalidClient
		}
		return domain.AuthRequest{}, err
	}

	// Exact match against the registered set; a URI we don't trust must
	// never receive a redirect, not even an error one.
	registered := false
	for _, uri := range client.RedirectURIs {
		if uri == p.RedirectURI {
			registered = true
			break
		}
	}
	if !registered {
		return domain.AuthRequest{}, ErrUnauthorizedRedirect
	}

	challenge, method, err := normalizePKCE(p.CodeChallenge, p.CodeChallengeMethod)
	if err != nil {
		return domain.AuthRequest{}, err
	}

	requested := p.Scopes
	if len(requested) == 0 {
		requested = client.Scopes
	}
	effective := intersectScopes(requested, client.Scopes)
	if len(effective) == 0 {
		return domain.AuthRequest{}, ErrInvalidScope
	}

	id, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.AuthRequest{}, err
	}

	ttl := s.RequestTTL
	if ttl <= 0 {
		ttl = DefaultAuthRequestTTL
	}

	now := time.Now().UTC()
	req := domain.AuthRequest{
		ID:                  id,
		ClientID:            client.ID,
		RedirectURI:         p.RedirectURI,
		Scopes:              effective,
		State:               p.State,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Status:              domain.AuthRequestPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}

	if err := s.Store.AuthRequests().CreateAuthRequest(ctx, req); err != nil {
		l.Error("failed to create authorization request", "error", err)
		return domain.AuthRequest{}, err
	}

	l.Info("authorization request created",
		"client_id", client.ID,
		"scopes", strings.Join(effective, " "),
	)
	return req, nil
}

// Complete attaches a user credential to a pending request, transitioning it
// to authorized. The credential is sealed before it touches the database.
//
// Exactly one caller wins for a given request; a duplicate callback gets
// ErrAlreadyCompleted, which the authentication page treats as benign. A
// request past its TTL gets ErrRequestExpired and is marked expired lazily.
func (s *AuthorizeService) Complete(
	ctx context.Context,
	requestID, userToken string,
) (domain.AuthRequest, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(requestID) == "" || strings.TrimSpace(userToken) == "" {
		return domain.AuthRequest{}, ErrInvalidRequest
	}

	req, err := s.Store.AuthRequests().GetAuthRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, ErrRequestNotFound
		}
		return domain.AuthRequest{}, err
	}

	now := time.Now().UTC()
	if err := classifyForCompletion(req, now); err != nil {
		return domain.AuthRequest{}, err
	}

	sealed, err := s.Sealer.Seal([]byte(userToken))
	if err != nil {
		l.Error("failed to seal user credential", "error", err)
		return domain.AuthRequest{}, err
	}

	ok, err := s.Store.AuthRequests().CompleteAuthRequest(ctx, requestID, sealed, now)
	if err != nil {
		return domain.AuthRequest{}, err
	}
	if !ok {
		// Lost the CAS: re-read and report what actually happened.
		current, err := s.Store.AuthRequests().GetAuthRequest(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.AuthRequest{}, ErrRequestNotFound
			}
			return domain.AuthRequest{}, err
		}
		if err := classifyForCompletion(current, now); err != nil {
			return domain.AuthRequest{}, err
		}
		// Pending but expired just under the guard's clock.
		return domain.AuthRequest{}, ErrRequestExpired
	}

	req.Status = domain.AuthRequestAuthorized
	req.UserTokenEnc = sealed

	l.Info("authorization request completed", "client_id", req.ClientID)
	return req, nil
}

// SweepExpired flips past-TTL requests to expired and purges terminal rows
// older than a day. Run both lazily and by the housekeeping ticker.
func (s *AuthorizeService) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	n, err := s.Store.AuthRequests().MarkExpiredAuthRequests(ctx, now)
	if err != nil {
		return 0, err
	}

	if err := s.Store.AuthRequests().DeleteAuthRequestsBefore(ctx, now.Add(-24*time.Hour)); err != nil {
		return n, err
	}
	return n, nil
}

// classifyForCompletion maps a request's state to the completion error a
// caller should see, or nil if completion may proceed.
func classifyForCompletion(req domain.AuthRequest, now time.Time) error {
	switch req.Status {
	case domain.AuthRequestPending:
		if req.Expired(now) {
			return ErrRequestExpired
		}
		return nil
	case domain.AuthRequestAuthorized, domain.AuthRequestConsumed:
		return ErrAlreadyCompleted
	case domain.AuthRequestExpired:
		return ErrRequestExpired
	default:
		return ErrRequestNotFound
	}
}

// normalizePKCE validates the challenge pair on an authorization request.
// A challenge is always required; the method defaults to S256 when omitted.
func normalizePKCE(challenge, method string) (string, string, error) {
	challenge = strings.TrimSpace(challenge)
	if challenge == "" {
		return "", "", ErrInvalidRequest
	}

	switch {
	case method == "" || strings.EqualFold(method, cryptox.PKCEMethodS256):
		return challenge, cryptox.PKCEMethodS256, nil
	case strings.EqualFold(method, cryptox.PKCEMethodPlain):
		return challenge, cryptox.PKCEMethodPlain, nil
	default:
		return "", "", ErrInvalidRequest
	}
}
