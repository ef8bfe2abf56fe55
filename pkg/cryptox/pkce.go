package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// PKCE code challenge methods per RFC 7636.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// PKCEChallengeS256 derives the S256 challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func PKCEChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a code_verifier against a stored challenge using the
// stored method. Comparisons are constant-time. An unknown method fails
// closed.
func VerifyPKCE(challenge, method, verifier string) bool {
	challenge = strings.TrimSpace(challenge)
	verifier = strings.TrimSpace(verifier)
	if challenge == "" || verifier == "" {
		return false
	}

	switch {
	case strings.EqualFold(method, PKCEMethodS256):
		expected := PKCEChallengeS256(verifier)
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
	case strings.EqualFold(method, PKCEMethodPlain):
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	default:
		return false
	}
}
