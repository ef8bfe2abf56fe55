package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// AuthorizeParams are the query parameters for GET /oauth/authorize.
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string // "S256" or "plain"
}

// AuthorizeURL builds the authorization endpoint URL the user-agent should
// be sent to. The server responds with the browser authentication page.
func (c *SDKClient) AuthorizeURL(p AuthorizeParams) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {p.ClientID},
		"redirect_uri":  {p.RedirectURI},
	}
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	if p.State != "" {
		q.Set("state", p.State)
	}
	if p.CodeChallenge != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", p.CodeChallengeMethod)
	}

	return c.url("/oauth/authorize") + "?" + q.Encode()
}

// CompleteCallback posts a user token against a pending authorization
// request, standing in for the browser page. Primarily useful in tests and
// headless integrations.
func (c *SDKClient) CompleteCallback(
	ctx context.Context,
	authRequestID, userToken string,
) (*CallbackResponse, error) {
	body, err := json.Marshal(CallbackRequest{
		AuthRequestID: authRequestID,
		UserToken:     userToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal callback request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth/musickit/callback",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return nil, err
	}

	var cbResp CallbackResponse
	if err := decodeJSON(resp, &cbResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &cbResp, nil
}
