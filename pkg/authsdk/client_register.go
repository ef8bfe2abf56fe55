package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Register registers a new OAuth2 client via dynamic client registration
// (RFC 7591). The returned ClientSecret, if any, is only ever available here.
func (c *SDKClient) Register(
	ctx context.Context,
	req ClientRegistrationRequest,
) (*ClientRegistrationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth/register",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return nil, err
	}

	var regResp ClientRegistrationResponse
	if err := decodeJSON(resp, &regResp, http.StatusCreated); err != nil {
		return nil, err
	}

	return &regResp, nil
}
