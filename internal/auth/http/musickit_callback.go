package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/httpx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

// CallbackHandler serves POST /oauth/musickit/callback. The approval page
// posts here once the browser SDK hands it a user token; the handler
// completes the pending request, mints the single-use authorization code,
// and tells the page where to send the user-agent.
type CallbackHandler struct {
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	var req authsdk.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	authReq, err := h.AuthorizeService.Complete(ctx, req.AuthRequestID, req.UserToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			authsdk.ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrRequestNotFound):
			authsdk.NewOAuth2Error(
				http.StatusNotFound,
				"invalid_request",
				"unknown authorization request",
			).WriteError(w)
		case errors.Is(err, service.ErrRequestExpired):
			authsdk.NewOAuth2Error(
				http.StatusBadRequest,
				"invalid_request",
				"authorization request expired, restart the flow",
			).WriteError(w)
		case errors.Is(err, service.ErrAlreadyCompleted):
			// Duplicate callback, likely a page reload. Not retryable but
			// not an attack either.
			authsdk.NewOAuth2Error(
				http.StatusConflict,
				"invalid_request",
				"authorization request already completed",
			).WriteError(w)
		default:
			log.Error("callback completion failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	code, err := h.TokenService.IssueCode(ctx, authReq)
	if err != nil {
		log.Error("failed to issue authorization code", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	redirectURL, err := appendQuery(authReq.RedirectURI, url.Values{
		"code":  {code},
		"state": {authReq.State},
	})
	if err != nil {
		log.Error("failed to build redirect url", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.CallbackResponse{
		RedirectURL: redirectURL,
		Status:      "success",
	})
}
