package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("test-key")
	require.NoError(t, err)
	verifier := signer.Verifier("tunegate")

	now := time.Now()
	claims := NewAccessClaims(
		"req-123",
		"client-abc",
		[]string{"library:read"},
		"sealed-opaque",
		time.Hour,
		"tunegate",
		now,
	)

	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := verifier.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "req-123", got.Subject)
	require.Equal(t, "client-abc", got.ClientID)
	require.Equal(t, []string{"library:read"}, got.Scopes)
	require.Equal(t, "sealed-opaque", got.UserTokenEnc)
	require.Equal(t, "tunegate", got.Issuer)
	require.NotEmpty(t, got.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("test-key")
	require.NoError(t, err)
	verifier := signer.Verifier("tunegate")

	claims := NewAccessClaims(
		"req-123", "client-abc", nil, "",
		time.Hour, "tunegate",
		time.Now().Add(-2*time.Hour),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("test-key")
	require.NoError(t, err)
	verifier := signer.Verifier("someone-else")

	claims := NewAccessClaims(
		"req-123", "client-abc", nil, "",
		time.Hour, "tunegate", time.Now(),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("key-a")
	require.NoError(t, err)
	other, err := GenerateSignerES256("key-a") // same kid, different key
	require.NoError(t, err)

	claims := NewAccessClaims(
		"req-123", "client-abc", nil, "",
		time.Hour, "tunegate", time.Now(),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = other.Verifier("tunegate").Verify(raw)
	require.Error(t, err)
}

func TestVerifyRejectsUnknownKID(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("key-a")
	require.NoError(t, err)
	verifier, err := GenerateSignerES256("key-b")
	require.NoError(t, err)

	claims := NewAccessClaims(
		"req-123", "client-abc", nil, "",
		time.Hour, "tunegate", time.Now(),
	)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verifier("tunegate").Verify(raw)
	require.ErrorIs(t, err, ErrUnknownKID)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("test-key")
	require.NoError(t, err)

	_, err = signer.Verifier("tunegate").Verify("not.a.jwt")
	require.Error(t, err)
}

func TestPublicJWK(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSignerES256("test-key")
	require.NoError(t, err)

	jwk := signer.PublicJWK()
	require.Equal(t, "EC", jwk.Kty)
	require.Equal(t, "P-256", jwk.Crv)
	require.Equal(t, "ES256", jwk.Alg)
	require.Equal(t, "test-key", jwk.Kid)
	require.NotEmpty(t, jwk.X)
	require.NotEmpty(t, jwk.Y)
}
