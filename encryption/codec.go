// Package encryption seals ledger payloads. Every call draws a fresh 16-byte
// IV and the ciphertext carries an authentication tag, so a wrong key or a
// wrong IV is reported instead of yielding garbage.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize = 32
	IVSize  = 16
)

// ErrDecrypt is returned for every decryption failure. It never wraps the
// underlying cause so nothing about the payload leaks through error text.
var ErrDecrypt = errors.New("decryption failed")

// ErrEncode is returned when a payload cannot be serialized before sealing.
var ErrEncode = errors.New("payload encoding failed")

// Codec encrypts and decrypts payloads with one fixed key. It is safe for
// concurrent use.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCodec builds a codec around a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher mode: %w", err)
	}
	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// NewCodecFromHex decodes a hex encoded 32-byte key.
func NewCodecFromHex(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New("encryption key is not valid hex")
	}
	return NewCodec(key)
}

// GenerateKey returns a random key encoded as hex.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Encrypt seals plaintext under a fresh IV.
func (c *Codec) Encrypt(plaintext []byte) (cipherHex, ivHex string, err error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", "", fmt.Errorf("generating iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(iv), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Codec) Decrypt(cipherHex, ivHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return nil, ErrDecrypt
	}
	sealed, err := hex.DecodeString(cipherHex)
	if err != nil || len(sealed) < c.aead.Overhead() {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptJSON serializes v and seals it.
func (c *Codec) EncryptJSON(v any) (cipherHex, ivHex string, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", "", ErrEncode
	}
	return c.Encrypt(plaintext)
}

// DecryptJSON opens a payload and decodes it into v. A payload that opens but
// does not decode is reported as ErrDecrypt.
func (c *Codec) DecryptJSON(cipherHex, ivHex string, v any) error {
	plaintext, err := c.Decrypt(cipherHex, ivHex)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrDecrypt
	}
	return nil
}
