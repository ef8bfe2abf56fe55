package http

import (
	"encoding/json"
	"net/http"

	"github.com/tunegate/tunegate/pkg/jwtx"
)

// JWKSHandler serves the public verification key at
// GET /.well-known/jwks.json.
func JWKSHandler(signer *jwtx.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keySet := jwtx.JWKS{
			Keys: []jwtx.JWK{signer.PublicJWK()},
		}

		// Public keys may be cached briefly; verifiers poll this endpoint.
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(keySet)
	}
}
