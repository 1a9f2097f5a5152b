package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize          = 16
	keySize           = 32
	defaultIterations = 100_000
)

var ErrDecrypt = errors.New("cannot decrypt backup")

// Transform turns a backup document into an opaque payload and back.
type Transform interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(payload []byte) ([]byte, error)
}

// Passthrough leaves payloads untouched.
type Passthrough struct{}

func (Passthrough) Seal(p []byte) ([]byte, error) { return p, nil }
func (Passthrough) Open(p []byte) ([]byte, error) { return p, nil }

// AESCipher encrypts with AES-256-GCM using a key derived from a passphrase
// by PBKDF2-SHA256 with a fresh salt per payload. Payloads are base64 of
// salt || nonce || ciphertext.
type AESCipher struct {
	passphrase []byte
	iterations int
}

func NewAESCipher(passphrase string) (*AESCipher, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is empty")
	}
	return &AESCipher{passphrase: []byte(passphrase), iterations: defaultIterations}, nil
}

// NewTransform returns an AESCipher, or Passthrough when passphrase is empty.
func NewTransform(passphrase string) Transform {
	if passphrase == "" {
		return Passthrough{}
	}
	c, _ := NewAESCipher(passphrase)
	return c
}

func (c *AESCipher) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, c.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

func (c *AESCipher) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	aead, err := c.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	raw := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = aead.Seal(raw, nonce, plaintext, nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (c *AESCipher) Open(payload []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	raw = raw[:n]
	if len(raw) < saltSize {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	salt := raw[:saltSize]
	aead, err := c.gcm(salt)
	if err != nil {
		return nil, err
	}
	rest := raw[saltSize:]
	if len(rest) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}
