package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)
		_, err = GenerateToken(-1)
		require.Error(t, err)
	})

	t.Run("produces url-safe unpadded output", func(t *testing.T) {
		tok, err := GenerateToken(TokenSize256)
		require.NoError(t, err)
		require.Len(t, tok, 43)
		require.False(t, strings.ContainsAny(tok, "+/="))
	})

	t.Run("tokens are unique", func(t *testing.T) {
		a := MustGenerateToken(TokenSize128)
		b := MustGenerateToken(TokenSize128)
		require.NotEqual(t, a, b)
	})
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	fp := FingerprintToken("some-opaque-token")
	require.Len(t, fp, 43)
	require.Equal(t, fp, FingerprintToken("some-opaque-token"))
	require.NotEqual(t, fp, FingerprintToken("some-other-token"))
}

func TestHashAndVerifySecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("s3cret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifySecret("s3cret", hash))
	require.Error(t, VerifySecret("wrong", hash))
	require.Error(t, VerifySecret("s3cret", "not-a-phc-hash"))

	// Salted: hashing the same secret twice yields different encodings.
	hash2, err := HashSecret("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, hash, hash2)
	require.NoError(t, VerifySecret("s3cret", hash2))
}

func TestSealer(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		s, err := NewSealer([]byte("test-master-key"))
		require.NoError(t, err)

		sealed, err := s.Seal([]byte("musickit-user-token"))
		require.NoError(t, err)
		require.NotContains(t, string(sealed), "musickit-user-token")

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, "musickit-user-token", string(opened))
	})

	t.Run("rejects empty key material", func(t *testing.T) {
		_, err := NewSealer(nil)
		require.Error(t, err)
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		s, err := NewSealer([]byte("test-master-key"))
		require.NoError(t, err)

		sealed, err := s.Seal([]byte("payload"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff

		_, err = s.Open(sealed)
		require.Error(t, err)
	})

	t.Run("different keys cannot open", func(t *testing.T) {
		a, err := NewSealer([]byte("key-a"))
		require.NoError(t, err)
		b, err := NewSealer([]byte("key-b"))
		require.NoError(t, err)

		sealed, err := a.Seal([]byte("payload"))
		require.NoError(t, err)
		_, err = b.Open(sealed)
		require.Error(t, err)
	})

	t.Run("rejects short ciphertext", func(t *testing.T) {
		s, err := NewSealer([]byte("test-master-key"))
		require.NoError(t, err)
		_, err = s.Open([]byte{0x01, 0x02})
		require.Error(t, err)
	})
}

func TestVerifyPKCE(t *testing.T) {
	t.Parallel()

	verifier := "verifier123"
	challenge := PKCEChallengeS256(verifier)

	t.Run("S256 match", func(t *testing.T) {
		require.True(t, VerifyPKCE(challenge, "S256", verifier))
		require.True(t, VerifyPKCE(challenge, "s256", verifier))
	})

	t.Run("S256 mismatch", func(t *testing.T) {
		require.False(t, VerifyPKCE(challenge, "S256", "verifier124"))
	})

	t.Run("plain match", func(t *testing.T) {
		require.True(t, VerifyPKCE("exact-value", "plain", "exact-value"))
		require.False(t, VerifyPKCE("exact-value", "plain", "other-value"))
	})

	t.Run("empty inputs fail closed", func(t *testing.T) {
		require.False(t, VerifyPKCE("", "S256", verifier))
		require.False(t, VerifyPKCE(challenge, "S256", ""))
	})

	t.Run("unknown method fails closed", func(t *testing.T) {
		require.False(t, VerifyPKCE(challenge, "S512", verifier))
	})
}
