package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrEmptyKey         = errors.New("encryption key is empty")
	ErrInvalidCipherMsg = errors.New("ciphertext is malformed or was encrypted with a different key")
)

// Cipher provides authenticated symmetric encryption for tokens at rest.
// The AES-256 key is derived from the configured secret via SHA-256.
type Cipher struct {
	aead cipher.AEAD
}

func New(key string) (*Cipher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce prepended to the ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Corrupted input or a
// foreign key yields ErrInvalidCipherMsg, never garbage.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCipherMsg
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCipherMsg
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidCipherMsg
	}
	return string(plaintext), nil
}
