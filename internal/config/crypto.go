package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"crypto/sha256"
)

// ErrDevModePlaintext names the dev-mode condition (no encryption key
// configured). Encrypt and Decrypt do not return it: in dev mode they pass
// their input through unchanged with a nil error.
var ErrDevModePlaintext = errors.New("secrets encryption key not configured: operating in dev-mode plaintext")

// Crypto encrypts/decrypts per-bot secrets (LLM API keys) at rest. Absence of
// SECRETS_ENCRYPTION_KEY means dev mode: Encrypt/Decrypt become no-ops that
// pass the plaintext through, matching the env semantics spec §6 describes.
// Unlike the always-plaintext original, a configured key gets real AES-GCM
// protection rather than a stub.
type Crypto struct {
	aead cipher.AEAD // nil in dev mode
}

// NewCrypto derives an AEAD from keyHex (expected 32 bytes hex-encoded, i.e.
// 64 hex chars) via HKDF-SHA256. An empty keyHex puts Crypto into dev mode.
func NewCrypto(keyHex string) (*Crypto, error) {
	if keyHex == "" {
		return &Crypto{}, nil
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.New("secrets_encryption_key must be hex-encoded")
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, raw, nil, []byte("botfleet-secrets-v1"))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Crypto{aead: aead}, nil
}

// DevMode reports whether this Crypto has no configured key.
func (c *Crypto) DevMode() bool {
	return c.aead == nil
}

// Encrypt seals plaintext, prefixing the random nonce. In dev mode it
// returns plaintext unchanged.
func (c *Crypto) Encrypt(plaintext []byte) ([]byte, error) {
	if c.DevMode() {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. In dev mode it returns
// ciphertext unchanged, since Encrypt never sealed it.
func (c *Crypto) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.DevMode() {
		return ciphertext, nil
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return c.aead.Open(nil, nonce, sealed, nil)
}
