package music

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeveloperTokenTTL is the lifetime of a minted developer token. The
// upstream API caps these at six months; twelve hours keeps the blast
// radius of a leaked token small.
const DeveloperTokenTTL = 12 * time.Hour

// DeveloperTokenSource mints and caches the ES256 developer token that
// authenticates this service to the catalog API. A token is reused until
// shortly before expiry, then replaced.
type DeveloperTokenSource struct {
	teamID string
	keyID  string
	key    *ecdsa.PrivateKey

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewDeveloperTokenSource parses the PEM-encoded private key issued for the
// developer account. PKCS8 and SEC1 blocks are accepted.
func NewDeveloperTokenSource(teamID, keyID string, pemKey []byte) (*DeveloperTokenSource, error) {
	if teamID == "" || keyID == "" {
		return nil, errors.New("music: developer team id and key id are required")
	}

	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("music: no PEM block found in developer key")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("music: parse EC key: %w", err)
		}
		key = k
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("music: parse PKCS8 key: %w", err)
		}
		k, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("music: developer key is not ECDSA")
		}
		key = k
	}

	return &DeveloperTokenSource{
		teamID: teamID,
		keyID:  keyID,
		key:    key,
	}, nil
}

// Token returns a valid developer token, minting a new one if the cached
// token is within a minute of expiry.
func (s *DeveloperTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.token != "" && now.Add(time.Minute).Before(s.expiresAt) {
		return s.token, nil
	}

	expiresAt := now.Add(DeveloperTokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    s.teamID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("music: sign developer token: %w", err)
	}

	s.token = signed
	s.expiresAt = expiresAt
	return signed, nil
}
