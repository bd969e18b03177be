package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key length every algorithm accepts.
const KeySize = 32

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Errors.
var (
	ErrKeySize        = fmt.Errorf("adaptive: key must be %d bytes", KeySize)
	ErrUnknownCipher  = errors.New("adaptive: unknown cipher type")
	ErrShortData      = errors.New("adaptive: ciphertext too short")
	ErrDecryptFailure = errors.New("adaptive: decryption failed, wrong key or corrupted data")
)

// Cipher provides authenticated encryption.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt seals plaintext. The result is nonce || ciphertext || tag.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a value produced by Encrypt with the same key and
	// additional data.
	Decrypt(sealed, additionalData []byte) ([]byte, error)

	// Overhead returns the bytes Encrypt adds to the plaintext.
	Overhead() int
}

// New returns the preferred cipher for this machine.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType returns a cipher of the given type.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch t {
	case CipherAESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, t)
	}
	if err != nil {
		return nil, err
	}
	return &aeadCipher{typ: t, aead: aead}, nil
}

// ParseType validates a cipher name. Empty means Preferred.
func ParseType(s string) (CipherType, error) {
	switch CipherType(s) {
	case "":
		return Preferred(), nil
	case CipherAESGCM, CipherChaCha20:
		return CipherType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCipher, s)
	}
}

// Preferred returns AES-GCM where Go uses hardware AES, ChaCha20 elsewhere.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

type aeadCipher struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType {
	return c.typ
}

func (c *aeadCipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(sealed, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, ErrShortData
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
	if err != nil {
		return nil, ErrDecryptFailure
	}
	return plaintext, nil
}
