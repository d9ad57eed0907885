package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const KeySize = 32

var (
	ErrMissingKey     = errors.New("crypto: encryption key is required")
	ErrInvalidKey     = errors.New("crypto: invalid encryption key")
	ErrMalformed      = errors.New("crypto: malformed ciphertext")
	ErrAuthentication = errors.New("crypto: message authentication failed")
)

// Codec is the opaque envelope contract the messaging pipeline relies on:
// Decrypt(Encrypt(x)) == x for every UTF-8 string x.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}

// Cipher seals strings with AES-256-GCM. The envelope is
// base64(nonce || ciphertext || tag).
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a base64 encoded 32 byte key.
func NewCipher(base64Key string) (*Cipher, error) {
	if base64Key == "" {
		return nil, ErrMissingKey
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidKey, err)
	}
	return NewCipherFromKey(key)
}

func NewCipherFromKey(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes for AES-256, got %d", ErrInvalidKey, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// GenerateKey returns a fresh random key in the base64 form NewCipher accepts.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt maps "" to "" so empty text stays empty at rest.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize+c.gcm.Overhead() {
		return "", fmt.Errorf("%w: envelope too short", ErrMalformed)
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}
