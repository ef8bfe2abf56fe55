package jwtx

// JWK is a single JSON Web Key as served by the JWKS endpoint (RFC 7517).
// Only the public EC fields are ever populated.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// JWKS is the key set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}
