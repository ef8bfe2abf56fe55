package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
	"github.com/tunegate/tunegate/internal/auth/store"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/idx"
	"github.com/tunegate/tunegate/pkg/jwtx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrInvalidGrant  = errors.New("invalid_grant")
	ErrInvalidScope  = errors.New("invalid_scope")
	ErrInvalidToken  = errors.New("invalid_token")

	// errRotationLost signals a CAS loss inside the rotation transaction;
	// never escapes ExchangeRefreshToken.
	errRotationLost = errors.New("rotation lost")
)

// DefaultAuthorizationCodeTTL is how long a minted code stays redeemable.
const DefaultAuthorizationCodeTTL = 10 * time.Minute

// TokenService mints authorization codes and runs both token grants. Access
// tokens are stateless ES256 JWTs carrying the sealed user credential;
// refresh tokens are opaque, stored by fingerprint, and rotated on use.
type TokenService struct {
	Store  store.Store
	Signer *jwtx.Signer
	Sealer *cryptox.Sealer

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CodeTTL    time.Duration
}

// IssueCode mints a single-use authorization code for an authorized request.
// Only the SHA-256 fingerprint of the code is persisted.
func (s *TokenService) IssueCode(ctx context.Context, req domain.AuthRequest) (string, error) {
	now := time.Now().UTC()

	if req.Status != domain.AuthRequestAuthorized || req.Expired(now) {
		return "", ErrInvalidGrant
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultAuthorizationCodeTTL
	}

	record := domain.AuthorizationCode{
		ID:            idx.New().String(),
		AuthRequestID: req.ID,
		ClientID:      req.ClientID,
		CodeHash:      cryptox.FingerprintToken(code),
		RedirectURI:   req.RedirectURI,
		Scopes:        req.Scopes,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return "", err
	}

	return code, nil
}

// ExchangeAuthorizationCode implements the OAuth2 authorization_code grant.
//
// It authenticates the client, redeems the code exactly once, enforces PKCE
// against the challenge stored at authorization time, and mints the first
// token pair of a fresh rotation family. The whole redemption runs in one
// transaction so a concurrent exchange of the same code cannot double-issue.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if code == "" || redirectURI == "" || codeVerifier == "" {
		return nil, ErrInvalidGrant
	}

	codeHash := cryptox.FingerprintToken(code)

	var result *domain.TokenPair

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if authCode.ClientID != client.ID {
			return ErrInvalidGrant
		}
		if authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if now.After(authCode.ExpiresAt) {
			return ErrInvalidGrant
		}

		// Consume the code first; the guard on used_at makes a concurrent
		// redemption of the same code lose here.
		used, err := tx.AuthorizationCodes().MarkAuthorizationCodeUsed(ctx, authCode.ID, now)
		if err != nil {
			return err
		}
		if !used {
			return ErrInvalidGrant
		}

		req, err := tx.AuthRequests().GetAuthRequest(ctx, authCode.AuthRequestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if req.Status != domain.AuthRequestAuthorized || len(req.UserTokenEnc) == 0 {
			return ErrInvalidGrant
		}

		if !cryptox.VerifyPKCE(req.CodeChallenge, req.CodeChallengeMethod, codeVerifier) {
			return ErrInvalidGrant
		}

		consumed, err := tx.AuthRequests().ConsumeAuthRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidGrant
		}

		accessToken, err := s.signAccess(req.ID, client.ID, authCode.Scopes, req.UserTokenEnc, now)
		if err != nil {
			return err
		}

		refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		refresh := domain.RefreshToken{
			ID:            idx.New().String(),
			ClientID:      client.ID,
			AuthRequestID: req.ID,
			TokenHash:     cryptox.FingerprintToken(refreshOpaque),
			FamilyID:      idx.New().String(), // first member of a new family
			Scopes:        authCode.Scopes,
			UserTokenEnc:  req.UserTokenEnc,
			ExpiresAt:     now.Add(s.refreshTTL()),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := tx.RefreshTokens().CreateRefreshToken(ctx, refresh); err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshOpaque,
			TokenType:    "Bearer",
			ExpiresIn:    s.accessTTL(),
			Scope:        strings.Join(authCode.Scopes, " "),
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			l.Info("authorization_code exchange rejected", "client_id", clientID)
		}
		return nil, err
	}

	return result, nil
}

// ExchangeRefreshToken implements the OAuth2 refresh_token grant with
// rotation and reuse detection.
//
// A valid token is consumed and replaced by a successor in the same family,
// carrying the sealed user credential forward. Presenting a token that was
// already rotated away is treated as theft: the entire family is revoked and
// the caller gets invalid_grant.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshOpaque string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		return nil, ErrInvalidGrant
	}

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if rt.ClientID != client.ID {
		return nil, ErrInvalidGrant
	}
	if rt.Revoked || now.After(rt.ExpiresAt) {
		return nil, ErrInvalidGrant
	}
	if rt.ConsumedAt != nil {
		// Reuse of a rotated-away token: assume the family is compromised.
		l.Warn("refresh token reuse detected, revoking family",
			"client_id", client.ID,
			"family_id", rt.FamilyID,
		)
		if err := s.Store.RefreshTokens().RevokeFamily(ctx, rt.FamilyID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidGrant
	}

	var result *domain.TokenPair

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, rt.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errRotationLost
		}

		accessToken, err := s.signAccess(rt.AuthRequestID, client.ID, rt.Scopes, rt.UserTokenEnc, now)
		if err != nil {
			return err
		}

		successorOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		successor := domain.RefreshToken{
			ID:            idx.New().String(),
			ClientID:      client.ID,
			AuthRequestID: rt.AuthRequestID,
			TokenHash:     cryptox.FingerprintToken(successorOpaque),
			FamilyID:      rt.FamilyID, // rotation stays in the family
			Scopes:        rt.Scopes,
			UserTokenEnc:  rt.UserTokenEnc,
			ExpiresAt:     now.Add(s.refreshTTL()),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := tx.RefreshTokens().CreateRefreshToken(ctx, successor); err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: successorOpaque,
			TokenType:    "Bearer",
			ExpiresIn:    s.accessTTL(),
			Scope:        strings.Join(rt.Scopes, " "),
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errRotationLost) {
			// A concurrent exchange won the CAS between our read and the
			// transaction. The second presentation is a reuse.
			l.Warn("refresh token reuse detected, revoking family",
				"client_id", client.ID,
				"family_id", rt.FamilyID,
			)
			if err := s.Store.RefreshTokens().RevokeFamily(ctx, rt.FamilyID); err != nil {
				return nil, err
			}
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	return result, nil
}

// VerifyAccessToken validates an access token purely: signature, issuer and
// expiry. No store access.
func (s *TokenService) VerifyAccessToken(raw string) (jwtx.Claims, error) {
	claims, err := s.Signer.Verifier(s.Issuer).Verify(raw)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ResolveUserCredential verifies an access token and unseals the user
// credential it carries. This is the only path that ever decrypts the
// credential; callers receive the plaintext for immediate downstream use
// and must not persist it.
func (s *TokenService) ResolveUserCredential(raw string) (string, error) {
	claims, err := s.VerifyAccessToken(raw)
	if err != nil {
		return "", err
	}
	if claims.UserTokenEnc == "" {
		return "", ErrInvalidToken
	}

	sealed, err := base64.RawURLEncoding.DecodeString(claims.UserTokenEnc)
	if err != nil {
		return "", ErrInvalidToken
	}

	plaintext, err := s.Sealer.Open(sealed)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plaintext), nil
}

// RevokeRefreshToken revokes a refresh token and its whole rotation family
// (RFC 7009). Revoking an unknown token is not an error.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshOpaque string) error {
	fp := cryptox.FingerprintToken(refreshOpaque)

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	return s.Store.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
}

func (s *TokenService) authenticateClient(
	ctx context.Context,
	clientID, clientSecret string,
) (domain.Client, error) {
	l := slogx.FromContext(ctx)

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if client.Public() {
		return client, nil
	}

	if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
		l.Info("client authentication failed", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}

	return client, nil
}

func (s *TokenService) signAccess(
	subject, clientID string,
	scopes []string,
	userTokenEnc []byte,
	now time.Time,
) (string, error) {
	claims := jwtx.NewAccessClaims(
		subject,  // subject = authorization request id
		clientID, // audience + cid
		scopes,
		base64.RawURLEncoding.EncodeToString(userTokenEnc),
		s.accessTTL(),
		s.Issuer,
		now,
	)
	return s.Signer.Sign(claims)
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

func intersectScopes(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
