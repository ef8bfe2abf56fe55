package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/httpx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

// RegisterHandler serves POST /oauth/register (RFC 7591 dynamic client
// registration). Registration is open: any caller may create a client, which
// is why the plaintext secret appears exactly once in the 201 response.
type RegisterHandler struct {
	ClientService *service.ClientService
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	var req authsdk.ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidClientMetadata.WriteError(w)
		return
	}

	client, secret, err := h.ClientService.Register(ctx, service.RegistrationParams{
		Name:         req.ClientName,
		RedirectURIs: req.RedirectURIs,
		AuthMethod:   req.TokenEndpointAuthMethod,
		Scopes:       httpx.ParseSpaceDelimitedFields(req.Scope),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRedirectURI):
			authsdk.ErrInvalidRedirectURI.WriteError(w)
		case errors.Is(err, service.ErrInvalidClientMetadata):
			authsdk.ErrInvalidClientMetadata.WriteError(w)
		default:
			log.Error("client registration failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	response := authsdk.ClientRegistrationResponse{
		ClientID:                client.ID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		ClientName:              client.Name,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.AuthMethod,
		Scope:                   strings.Join(client.Scopes, " "),
	}

	httpx.WriteJSON(w, http.StatusCreated, response)
}
