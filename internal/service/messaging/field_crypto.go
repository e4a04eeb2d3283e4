package messaging

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	fieldKeyEnv  = "MESSAGEHUB_FIELD_KEY"
	sealedPrefix = "enc:"
)

var errInvalidCiphertext = errors.New("invalid field ciphertext")

// FieldCipher seals personal fields (phone numbers) at rest with AES-GCM.
type FieldCipher struct {
	aead cipher.AEAD
}

// FieldCipherFromEnv returns nil when MESSAGEHUB_FIELD_KEY is unset.
func FieldCipherFromEnv() (*FieldCipher, error) {
	raw := strings.TrimSpace(os.Getenv(fieldKeyEnv))
	if raw == "" {
		return nil, nil
	}
	c, err := NewFieldCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldKeyEnv, err)
	}
	return c, nil
}

// NewFieldCipher accepts a 32 byte key, raw or base64 encoded.
func NewFieldCipher(raw string) (*FieldCipher, error) {
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// Seal encrypts plain. Empty input and a nil cipher pass through unchanged.
func (c *FieldCipher) Seal(plain string) (string, error) {
	if c == nil || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Open decrypts values produced by Seal; unsealed values are returned as is.
func (c *FieldCipher) Open(input string) (string, error) {
	if !strings.HasPrefix(input, sealedPrefix) {
		return input, nil
	}
	if c == nil {
		return "", errInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(input, sealedPrefix))
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}
