package cryptox

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestEnvelope(t *testing.T) *Envelope {
	t.Helper()
	env, err := NewEnvelope(testKeyHex, nil)
	require.NoError(t, err)
	return env
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnvelope(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"totp seed", "JBSWY3DPEHPK3PXP"},
		{"recovery code", "dGVzdC1yZWNvdmVyeS1jb2Rl"},
		{"empty string", ""},
		{"unicode", "sïłøäm-日本語"},
		{"contains separators", "a:b:c:d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := env.Seal(tt.plaintext)
			require.NoError(t, err)
			require.NotEqual(t, tt.plaintext, sealed)

			opened, err := env.Open(sealed)
			require.NoError(t, err)
			require.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestEnvelopeFormat(t *testing.T) {
	t.Parallel()
	env := newTestEnvelope(t)

	sealed, err := env.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	require.Len(t, parts, 3, "envelope should be iv:authTag:ciphertext")

	nonce, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	require.Len(t, nonce, 16)

	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	require.Len(t, tag, 16)

	_, err = hex.DecodeString(parts[2])
	require.NoError(t, err)
}

func TestEnvelopeFreshNonces(t *testing.T) {
	t.Parallel()
	env := newTestEnvelope(t)

	first, err := env.Seal("same plaintext")
	require.NoError(t, err)
	second, err := env.Seal("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, first, second, "sealing the same value twice must produce distinct envelopes")
}

func TestEnvelopeOpenRejectsTampering(t *testing.T) {
	t.Parallel()
	env := newTestEnvelope(t)

	sealed, err := env.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		parts := strings.Split(sealed, ":")
		raw, err := hex.DecodeString(parts[2])
		require.NoError(t, err)
		raw[0] ^= 0x01
		tampered := parts[0] + ":" + parts[1] + ":" + hex.EncodeToString(raw)

		_, err = env.Open(tampered)
		require.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("flipped tag bit", func(t *testing.T) {
		parts := strings.Split(sealed, ":")
		raw, err := hex.DecodeString(parts[1])
		require.NoError(t, err)
		raw[0] ^= 0x01
		tampered := parts[0] + ":" + hex.EncodeToString(raw) + ":" + parts[2]

		_, err = env.Open(tampered)
		require.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey := strings.Repeat("ff", 32)
		other, err := NewEnvelope(otherKey, nil)
		require.NoError(t, err)

		_, err = other.Open(sealed)
		require.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestEnvelopeOpenRejectsMalformed(t *testing.T) {
	t.Parallel()
	env := newTestEnvelope(t)

	tests := []struct {
		name     string
		envelope string
	}{
		{"no separators", "deadbeef"},
		{"two segments", "dead:beef"},
		{"four segments", "de:ad:be:ef"},
		{"non-hex nonce", "zz:" + strings.Repeat("ab", 16) + ":" + strings.Repeat("cd", 4)},
		{"short nonce", "abcd:" + strings.Repeat("ab", 16) + ":" + strings.Repeat("cd", 4)},
		{"short tag", strings.Repeat("ab", 16) + ":abcd:" + strings.Repeat("cd", 4)},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Open(tt.envelope)
			require.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestEnvelopeKeyValidation(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-hex key", func(t *testing.T) {
		_, err := NewEnvelope("not hex at all", nil)
		require.Error(t, err)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := NewEnvelope("aabbcc", nil)
		require.Error(t, err)
	})
}

func TestEnvelopePassthroughWithoutKey(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope("", nil)
	require.NoError(t, err)

	sealed, err := env.Seal("plaintext-seed")
	require.NoError(t, err)
	require.Equal(t, "plaintext-seed", sealed)

	opened, err := env.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "plaintext-seed", opened)
}
