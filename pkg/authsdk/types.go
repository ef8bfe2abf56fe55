package authsdk

import (
	"github.com/tunegate/tunegate/pkg/jwtx"
)

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// This is returned from the POST /oauth/token endpoint for both
// authorization_code and refresh_token grant types.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// Dynamic Client Registration Types (RFC 7591)
// ============================================================================

// ClientRegistrationRequest represents the metadata a client submits to
// POST /oauth/register.
type ClientRegistrationRequest struct {
	// ClientName is the human-readable name for the client
	ClientName string `json:"client_name"`

	// RedirectURIs is the list of allowed redirect URIs. At least one is
	// required; each must be an absolute URI without a fragment.
	RedirectURIs []string `json:"redirect_uris"`

	// TokenEndpointAuthMethod is either "client_secret_post" (confidential,
	// the default) or "none" (public client, PKCE required).
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	// Scope is the space-delimited list of scopes the client may request
	Scope string `json:"scope,omitempty"`

	// GrantTypes the client intends to use (informational)
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes the client intends to use (informational)
	ResponseTypes []string `json:"response_types,omitempty"`
}

// ClientRegistrationResponse is returned from POST /oauth/register on success.
type ClientRegistrationResponse struct {
	// ClientID is the unique identifier for the registered client
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret (only returned once at registration).
	// Empty for public clients.
	ClientSecret string `json:"client_secret,omitempty"`

	// ClientIDIssuedAt is the epoch time the client id was issued
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`

	// ClientName echoes the registered name
	ClientName string `json:"client_name"`

	// RedirectURIs echoes the registered redirect URIs
	RedirectURIs []string `json:"redirect_uris"`

	// TokenEndpointAuthMethod echoes the effective auth method
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`

	// Scope echoes the granted scopes, space-delimited
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// Authorization / Callback Types
// ============================================================================

// CallbackRequest is the JSON body the browser authentication page posts to
// POST /oauth/musickit/callback once the user has granted access.
type CallbackRequest struct {
	// AuthRequestID is the correlation handle embedded in the page
	AuthRequestID string `json:"auth_request_id"`

	// UserToken is the user credential obtained by the browser SDK
	UserToken string `json:"user_token"`
}

// CallbackResponse tells the page where to send the user-agent next.
type CallbackResponse struct {
	// RedirectURL is the client redirect URI with code and state attached
	RedirectURL string `json:"redirect_url"`

	// Status is "success" when the authorization completed
	Status string `json:"status"`
}

// ============================================================================
// Server Metadata Types (RFC 8414)
// ============================================================================

// AuthorizationServerMetadata is the RFC 8414 discovery document served at
// GET /.well-known/oauth-authorization-server.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
// This is returned from the GET /.well-known/jwks.json endpoint and contains
// public keys used to verify access token signatures.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Tool Dispatch Types
// ============================================================================

// ToolInfo describes a single catalog tool exposed at GET /mcp/tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolListResponse contains the available catalog tools.
type ToolListResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolCallRequest is the body of POST /mcp/call-tool.
type ToolCallRequest struct {
	// Name is the tool to invoke (e.g., "search_songs")
	Name string `json:"name"`

	// Arguments are tool-specific parameters
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResponse wraps the downstream catalog result.
type ToolCallResponse struct {
	// Result is the raw JSON document returned by the catalog
	Result any `json:"result"`
}
