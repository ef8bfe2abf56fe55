package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/internal/music"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/httpx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

// toolScopes maps each tool to the scope its caller must hold. Tools absent
// from the map (catalog-only reads) need no scope beyond a valid token.
var toolScopes = map[string]string{
	"search_library":      "library:read",
	"get_library_stats":   "library:read",
	"get_recently_played": "recently-played:read",
	"rate_song":           "library:write",
	"add_to_library":      "library:write",
	"create_playlist":     "playlists:write",
	"add_to_playlist":     "playlists:write",
}

// ToolsHandler serves the tool surface LLM callers hit with their access
// token: GET /mcp/tools and POST /mcp/call-tool. The user credential inside
// the token is unsealed per call and handed straight to the catalog client,
// never to the caller.
type ToolsHandler struct {
	TokenService *service.TokenService
	Dispatcher   *music.Dispatcher
}

func (h *ToolsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		authsdk.ErrServerError.WithDescription("catalog access is not configured").WriteError(w)
		return
	}
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ToolListResponse{
		Tools: h.Dispatcher.Tools(),
	})
}

func (h *ToolsHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if h.Dispatcher == nil {
		authsdk.ErrServerError.WithDescription("catalog access is not configured").WriteError(w)
		return
	}

	raw := bearerToken(r)
	if raw == "" {
		writeBearerError(w)
		return
	}
	claims, err := h.TokenService.VerifyAccessToken(raw)
	if err != nil {
		writeBearerError(w)
		return
	}

	var req authsdk.ToolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		authsdk.ErrInvalidRequest.WithDescription("tool name is required").WriteError(w)
		return
	}
	if scope, needed := toolScopes[req.Name]; needed && !slices.Contains(claims.Scopes, scope) {
		authsdk.NewOAuth2Error(
			http.StatusForbidden,
			"insufficient_scope",
			"token is missing the "+scope+" scope",
		).WriteError(w)
		return
	}

	userToken, err := h.TokenService.ResolveUserCredential(raw)
	if err != nil {
		writeBearerError(w)
		return
	}

	result, err := h.Dispatcher.Call(ctx, userToken, req.Name, req.Arguments)
	if err != nil {
		switch {
		case errors.Is(err, music.ErrUnknownTool), errors.Is(err, music.ErrBadArgument):
			authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		default:
			log.Error("tool call failed", "tool", req.Name, "err", err)
			authsdk.NewOAuth2Error(
				http.StatusBadGateway,
				"server_error",
				"upstream catalog request failed",
			).WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ToolCallResponse{Result: result})
}

// authenticate extracts and verifies the bearer token. On failure it writes
// the 401 itself and returns ok=false.
func (h *ToolsHandler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeBearerError(w)
		return "", false
	}
	if _, err := h.TokenService.VerifyAccessToken(raw); err != nil {
		writeBearerError(w)
		return "", false
	}
	return raw, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	authsdk.ErrInvalidToken.WriteError(w)
}
