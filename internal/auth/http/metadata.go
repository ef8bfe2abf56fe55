package http

import (
	"net/http"
	"strings"

	"github.com/tunegate/tunegate/internal/auth/domain"
	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/httpx"
)

// MetadataHandler serves the RFC 8414 discovery document at
// GET /.well-known/oauth-authorization-server.
func MetadataHandler(issuer string) http.HandlerFunc {
	base := strings.TrimRight(issuer, "/")

	doc := authsdk.AuthorizationServerMetadata{
		Issuer:                base,
		AuthorizationEndpoint: base + "/oauth/authorize",
		TokenEndpoint:         base + "/oauth/token",
		RegistrationEndpoint:  base + "/oauth/register",
		RevocationEndpoint:    base + "/oauth/revoke",
		JWKSURI:               base + "/.well-known/jwks.json",
		ScopesSupported:       service.SupportedScopes,
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
		},
		TokenEndpointAuthMethodsSupported: []string{
			domain.AuthMethodClientSecretPost,
			domain.AuthMethodNone,
		},
		CodeChallengeMethodsSupported: []string{
			cryptox.PKCEMethodS256,
			cryptox.PKCEMethodPlain,
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
