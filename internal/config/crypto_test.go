package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCrypto_DevModeRoundTripsPlaintext(t *testing.T) {
	c, err := NewCrypto("")
	require.NoError(t, err)
	require.True(t, c.DevMode())

	ciphertext, err := c.Encrypt([]byte("sk-live-abc123"))
	require.NoError(t, err)
	require.Equal(t, []byte("sk-live-abc123"), ciphertext)

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("sk-live-abc123"), plaintext)
}

func TestCrypto_EncryptDecryptRoundTrip(t *testing.T) {
	key := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	c, err := NewCrypto(key)
	require.NoError(t, err)
	require.False(t, c.DevMode())

	plaintext := []byte("sk-live-abc123")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestCrypto_RejectsNonHexKey(t *testing.T) {
	_, err := NewCrypto("not-hex-at-all!!")
	require.Error(t, err)
}

func TestCrypto_DecryptFailsOnTamperedCiphertext(t *testing.T) {
	key := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	c, err := NewCrypto(key)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = c.Decrypt(ciphertext)
	require.Error(t, err)
}
