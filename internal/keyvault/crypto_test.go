// ABOUTME: Tests for credential sealing and opening
// ABOUTME: Covers round-trips, tamper detection and malformed records

package keyvault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)

	sealed, err := sealer.Seal("sk-test-12345")
	require.NoError(t, err)
	assert.Equal(t, SealVersion, sealed.Version)
	assert.NotEmpty(t, sealed.Cipher)
	assert.NotEmpty(t, sealed.IV)
	assert.NotEmpty(t, sealed.Tag)

	plaintext, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-12345", plaintext)
}

func TestSealer_FreshIVPerSeal(t *testing.T) {
	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)

	a, err := sealer.Seal("same-value")
	require.NoError(t, err)
	b, err := sealer.Seal("same-value")
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Cipher, b.Cipher)
}

func TestSealer_TamperedTagFails(t *testing.T) {
	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)

	sealed, err := sealer.Seal("sk-test-12345")
	require.NoError(t, err)

	tag, err := base64.StdEncoding.DecodeString(sealed.Tag)
	require.NoError(t, err)
	tag[0] ^= 0xff
	sealed.Tag = base64.StdEncoding.EncodeToString(tag)

	_, err = sealer.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_WrongSecretFails(t *testing.T) {
	sealer, err := NewSealer("secret-a")
	require.NoError(t, err)
	other, err := NewSealer("secret-b")
	require.NoError(t, err)

	sealed, err := sealer.Seal("sk-test-12345")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_MalformedRecord(t *testing.T) {
	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)

	_, err = sealer.Open(&SealedKey{Cipher: "not base64!!!", IV: "aXY=", Tag: "dGFn"})
	assert.ErrorIs(t, err, ErrSealFormat)

	// Valid base64 but wrong IV length
	_, err = sealer.Open(&SealedKey{
		Cipher: base64.StdEncoding.EncodeToString([]byte("x")),
		IV:     base64.StdEncoding.EncodeToString([]byte("short")),
		Tag:    base64.StdEncoding.EncodeToString(make([]byte, 16)),
	})
	assert.ErrorIs(t, err, ErrSealFormat)
}

func TestNewSealer_EmptySecret(t *testing.T) {
	_, err := NewSealer("")
	assert.Error(t, err)
}
