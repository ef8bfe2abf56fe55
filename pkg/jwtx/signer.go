package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs access-token claims with a process-lifetime key. The key is
// loaded (or generated) once at startup and never mutated afterwards;
// rotation happens out-of-band by restarting with a new key.
type Signer struct {
	kid string
	key *ecdsa.PrivateKey
}

// NewSignerES256 creates an ES256 signer from a PEM-encoded private key.
// Both PKCS8 ("PRIVATE KEY") and SEC1 ("EC PRIVATE KEY") blocks are accepted.
func NewSignerES256(kid string, pemKey []byte) (*Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: no PEM block found")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse EC key: %w", err)
		}
		key = k
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8 key: %w", err)
		}
		k, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: PKCS8 key is not ECDSA")
		}
		key = k
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.New("jwtx: ES256 requires a P-256 key")
	}

	return &Signer{kid: kid, key: key}, nil
}

// GenerateSignerES256 generates an ephemeral P-256 signer. Tokens signed by
// an ephemeral key do not survive a restart; production deployments load a
// key from disk instead.
func GenerateSignerES256(kid string) (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key: %w", err)
	}
	return &Signer{kid: kid, key: key}, nil
}

// KID returns the key identifier placed in the token header.
func (s *Signer) KID() string { return s.kid }

// Sign produces a compact ES256 JWT for the claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}

// Verifier returns a Verifier for tokens signed by this key.
func (s *Signer) Verifier(issuer string) *Verifier {
	return &Verifier{
		keys:   map[string]*ecdsa.PublicKey{s.kid: &s.key.PublicKey},
		issuer: issuer,
	}
}

// PublicJWK returns the JSON Web Key form of the public key for the JWKS
// endpoint.
func (s *Signer) PublicJWK() JWK {
	pub := s.key.PublicKey
	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, byteLen)
	y := make([]byte, byteLen)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	return JWK{
		Kty: "EC",
		Crv: "P-256",
		Alg: "ES256",
		Use: "sig",
		Kid: s.kid,
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}
