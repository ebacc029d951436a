package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MasterKeyEnv is consulted when no master key file is configured.
const MasterKeyEnv = "TRUST_MASTER_KEY"

var (
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
	ErrDecrypt            = errors.New("cryptox: decryption failed")
	ErrEmptyKeyMaterial   = errors.New("cryptox: empty key material")
)

// hkdfSalt and hkdfInfo are fixed so the same master material always derives
// the same data key. Changing them makes every stored secret unreadable.
var (
	hkdfSalt = []byte("trustcore/at-rest/v1")
	hkdfInfo = []byte("aes-256-gcm data key")
)

// Cipher encrypts secrets at rest with AES-256-GCM. The output format is
// [12-byte nonce][ciphertext][16-byte tag] with a fresh random nonce per call.
// A Cipher holds no mutable state and is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from material with HKDF-SHA256.
func NewCipher(material []byte) (*Cipher, error) {
	if len(material) == 0 {
		return nil, ErrEmptyKeyMaterial
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, hkdfSalt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadMasterKey returns key material from, in order: the file at path, the
// TRUST_MASTER_KEY environment variable, or a freshly generated random key.
// The random fallback means secrets do not survive a restart, which is only
// acceptable in development. The bool result reports whether it was used.
func LoadMasterKey(path string) ([]byte, bool, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("cryptox: read master key file: %w", err)
		}
		data = []byte(strings.TrimSpace(string(data)))
		if len(data) == 0 {
			return nil, false, ErrEmptyKeyMaterial
		}
		return data, false, nil
	}

	if env := os.Getenv(MasterKeyEnv); env != "" {
		return []byte(env), false, nil
	}

	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, false, fmt.Errorf("cryptox: generate ephemeral master key: %w", err)
	}
	return material, true, nil
}

// Encrypt seals plaintext under a random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Tampered or truncated input fails
// with ErrDecrypt or ErrCiphertextTooShort.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptString encrypts s and returns the result as unpadded base64url,
// suitable for TEXT columns.
func (c *Cipher) EncryptString(s string) (string, error) {
	sealed, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(s string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", ErrDecrypt
	}
	plaintext, err := c.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
