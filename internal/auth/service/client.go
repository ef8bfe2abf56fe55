package service

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
	"github.com/tunegate/tunegate/internal/auth/store"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/idx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

var (
	ErrInvalidClientMetadata = errors.New("invalid_client_metadata")
	ErrInvalidRedirectURI    = errors.New("invalid_redirect_uri")
	ErrClientNotFound        = errors.New("client not found")
)

// SupportedScopes are the catalog scopes a client may be granted.
var SupportedScopes = []string{
	"library:read",
	"library:write",
	"playlists:read",
	"playlists:write",
	"recently-played:read",
}

// ClientService handles dynamic client registration (RFC 7591) and client
// authentication at the token endpoint.
type ClientService struct {
	Store store.Store
}

// RegistrationParams are the validated inputs for registering a client.
type RegistrationParams struct {
	Name         string
	RedirectURIs []string
	AuthMethod   string // defaults to client_secret_post
	Scopes       []string
}

// Register creates a new OAuth2 client from registration metadata.
//
// Every redirect URI must be absolute and fragment-free. Confidential
// clients get an auto-generated 256-bit secret, returned in plaintext
// exactly once; only its argon2id hash is stored. Public clients
// (token_endpoint_auth_method "none") get no secret and must use PKCE.
func (s *ClientService) Register(
	ctx context.Context,
	params RegistrationParams,
) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return domain.Client{}, "", ErrInvalidClientMetadata
	}

	if len(params.RedirectURIs) == 0 {
		return domain.Client{}, "", ErrInvalidClientMetadata
	}
	for _, raw := range params.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return domain.Client{}, "", err
		}
	}

	authMethod := params.AuthMethod
	switch authMethod {
	case "":
		authMethod = domain.AuthMethodClientSecretPost
	case domain.AuthMethodClientSecretPost, domain.AuthMethodNone:
	default:
		return domain.Client{}, "", ErrInvalidClientMetadata
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = SupportedScopes
	}
	for _, scope := range scopes {
		if !slices.Contains(SupportedScopes, scope) {
			return domain.Client{}, "", ErrInvalidClientMetadata
		}
	}

	var plaintextSecret, secretHash string
	if authMethod == domain.AuthMethodClientSecretPost {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			l.Error("failed to generate client secret", "error", err)
			return domain.Client{}, "", err
		}
		plaintextSecret = secret

		secretHash, err = cryptox.HashSecret(secret)
		if err != nil {
			l.Error("failed to hash client secret", "error", err)
			return domain.Client{}, "", err
		}
	}

	now := time.Now().UTC()
	client := domain.Client{
		ID:           idx.New().String(),
		Name:         name,
		SecretHash:   secretHash,
		RedirectURIs: params.RedirectURIs,
		AuthMethod:   authMethod,
		Scopes:       scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Clients().CreateClient(ctx, client); err != nil {
		l.Error("failed to create client", "error", err)
		return domain.Client{}, "", err
	}

	l.Info("client registered",
		"client_id", client.ID,
		"name", name,
		"auth_method", authMethod,
		"redirect_uris", len(client.RedirectURIs),
	)
	return client, plaintextSecret, nil
}

// Authenticate verifies client credentials at the token endpoint.
//
// Confidential clients must present their secret (constant-time argon2id
// verify). Public clients authenticate by id alone; any secret they send is
// ignored. All failures collapse to ErrInvalidClient so callers cannot
// distinguish unknown ids from wrong secrets.
func (s *ClientService) Authenticate(
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

// ValidateRedirect reports whether the URI exactly matches one registered
// for the client. No prefix or wildcard matching.
func (s *ClientService) ValidateRedirect(client domain.Client, uri string) bool {
	return slices.Contains(client.RedirectURIs, uri)
}

func validateRedirectURI(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidRedirectURI
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidRedirectURI
	}
	if !u.IsAbs() || u.Host == "" {
		return ErrInvalidRedirectURI
	}
	if u.Fragment != "" {
		return ErrInvalidRedirectURI
	}
	return nil
}
