package http

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/internal/music"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/httpx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

//go:embed templates/authorize.html
var templateFS embed.FS

var authorizePage = template.Must(template.ParseFS(templateFS, "templates/authorize.html"))

// authorizePageData feeds the embedded approval page. The request id is the
// correlation handle the page posts back once the browser SDK has a user
// token.
type authorizePageData struct {
	AuthRequestID  string
	DeveloperToken string
	Scopes         []string
}

// AuthorizeHandler serves GET /oauth/authorize. A valid request is persisted
// as pending and answered with the approval page; the flow then continues
// asynchronously through the browser callback.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService

	// DevTokens mints the developer token the page needs to configure the
	// browser SDK. Optional: absent in tests, the page renders without it.
	DevTokens *music.DeveloperTokenSource
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	query := r.URL.Query()

	// Trim to match Begin's validation: a whitespace-only client_id must hit
	// the empty-parameter 400 below, never the redirect error channel.
	clientID := strings.TrimSpace(query.Get("client_id"))
	redirectURI := strings.TrimSpace(query.Get("redirect_uri"))
	state := query.Get("state")

	// response_type is checked before anything else, but the error may only
	// be delivered by redirect once the redirect URI is known to be trusted.
	responseTypeOK := query.Get("response_type") == "code"

	req, err := h.AuthorizeService.Begin(ctx, service.BeginParams{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scopes:              httpx.ParseSpaceDelimitedFields(query.Get("scope")),
		State:               state,
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	})
	if err != nil {
		h.writeBeginError(w, err, clientID, redirectURI, state, log)
		return
	}

	if !responseTypeOK {
		// The client and redirect URI validated, so the error goes back by
		// redirect per RFC 6749.
		redirectError(w, r, redirectURI, "unsupported_response_type", state)
		return
	}

	var devToken string
	if h.DevTokens != nil {
		devToken, err = h.DevTokens.Token()
		if err != nil {
			log.Error("failed to mint developer token for approval page", "err", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := authorizePage.Execute(w, authorizePageData{
		AuthRequestID:  req.ID,
		DeveloperToken: devToken,
		Scopes:         req.Scopes,
	}); err != nil {
		log.Error("failed to render approval page", "err", err)
	}
}

// writeBeginError maps Begin failures onto the two delivery channels: a JSON
// error when the redirect URI cannot be trusted, an error redirect once it
// can.
func (h *AuthorizeHandler) writeBeginError(
	w http.ResponseWriter,
	err error,
	clientID, redirectURI, state string,
	log *slog.Logger,
) {
	switch {
	case errors.Is(err, service.ErrInvalidClient),
		errors.Is(err, service.ErrUnauthorizedRedirect):
		// Never redirect to a URI that failed validation.
		authsdk.ErrInvalidRequest.
			WithDescription("unknown client or unregistered redirect_uri").
			WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		if clientID == "" || redirectURI == "" {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
		// Begin validates the redirect URI before PKCE, so reaching this
		// branch with both parameters present means the URI is registered.
		redirectErrorRaw(w, redirectURI, "invalid_request", state)
	case errors.Is(err, service.ErrInvalidScope):
		redirectErrorRaw(w, redirectURI, "invalid_scope", state)
	default:
		log.Error("authorization request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, state string) {
	target, err := appendQuery(redirectURI, url.Values{
		"error": {code},
		"state": {state},
	})
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectErrorRaw writes the redirect without an *http.Request, for paths
// where the handler already consumed it.
func redirectErrorRaw(w http.ResponseWriter, redirectURI, code, state string) {
	target, err := appendQuery(redirectURI, url.Values{
		"error": {code},
		"state": {state},
	})
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}

// appendQuery merges params into the URI's existing query string. Empty
// values are dropped.
func appendQuery(rawURI string, params url.Values) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			if v != "" {
				q.Set(key, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
