// Package authsdk provides the OAuth2 wire types and error taxonomy shared
// between the TuneGate authorization server and Go clients, plus a small SDK
// client for driving the server's endpoints.
//
// The server side uses OAuth2Error (errors.go) to write RFC 6749 compliant
// error bodies, and the request/response structs (types.go) as its JSON
// contract for registration (RFC 7591), the token endpoint, the browser
// callback, and the RFC 8414 discovery document.
//
// The client side wraps the same endpoints:
//
//	sdk := authsdk.NewSDKClient("https://auth.example.com")
//
//	reg, err := sdk.Register(ctx, authsdk.ClientRegistrationRequest{
//		ClientName:   "my-agent",
//		RedirectURIs: []string{"https://agent.example.com/callback"},
//	})
//	if err != nil { ... }
//
//	// Send the user-agent to sdk.AuthorizeURL(...), then once redirected
//	// back with a code:
//	tokens, err := sdk.AuthorizationCodeGrant(ctx, reg.ClientID, reg.ClientSecret,
//		code, redirectURI, verifier)
//
// Errors returned by SDK calls are *OAuth2Error values when the server
// responded with an OAuth2 error body, so callers can switch on the Code
// field or compare against the predefined errors with errors.As.
package authsdk
