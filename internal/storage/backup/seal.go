package backup

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/keydesk/pkg/crypto/adaptive"
)

// Errors.
var (
	ErrPassphraseTooWeak  = errors.New("backup: passphrase too weak (minimum 8 characters)")
	ErrPassphraseRequired = errors.New("backup: file is sealed, a passphrase is required")
	ErrUnsupported        = errors.New("backup: unsupported sealed file version or cipher")
	ErrDecryptionFailed   = errors.New("backup: decryption failed, wrong passphrase or corrupted file")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the key derivation salt length.
	SaltLength = 16

	magic         = "KDBK"
	formatVersion = 1
	headerLength  = len(magic) + 2 + SaltLength

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var cipherIDs = map[adaptive.CipherType]byte{
	adaptive.CipherAESGCM:   1,
	adaptive.CipherChaCha20: 2,
}

// DeriveKey derives the cipher key from a passphrase with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, adaptive.KeySize)
}

// IsSealed reports whether data starts with the sealed file magic.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(magic))
}

// Seal encrypts plaintext under passphrase and writes the sealed file to w.
// An empty cipher type picks the machine's preferred one.
func Seal(w io.Writer, plaintext, passphrase []byte, typ adaptive.CipherType) error {
	if len(passphrase) < MinPassphraseLength {
		return ErrPassphraseTooWeak
	}
	if typ == "" {
		typ = adaptive.Preferred()
	}
	id, ok := cipherIDs[typ]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, typ)
	}

	header := make([]byte, 0, headerLength)
	header = append(header, magic...)
	header = append(header, formatVersion, id)
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("backup: salt: %w", err)
	}
	header = append(header, salt...)

	key := DeriveKey(passphrase, salt)
	defer zero(key)
	c, err := adaptive.NewWithType(key, typ)
	if err != nil {
		return err
	}
	sealed, err := c.Encrypt(plaintext, header)
	if err != nil {
		return fmt.Errorf("backup: encrypt: %w", err)
	}

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(sealed)
	return err
}

// Open decrypts a sealed file.
func Open(data, passphrase []byte) ([]byte, error) {
	if !IsSealed(data) || len(data) < headerLength {
		return nil, fmt.Errorf("%w: not a sealed backup", ErrUnsupported)
	}
	if len(passphrase) == 0 {
		return nil, ErrPassphraseRequired
	}
	header := data[:headerLength]
	if header[len(magic)] != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupported, header[len(magic)])
	}

	var typ adaptive.CipherType
	for t, id := range cipherIDs {
		if id == header[len(magic)+1] {
			typ = t
		}
	}
	if typ == "" {
		return nil, fmt.Errorf("%w: cipher %d", ErrUnsupported, header[len(magic)+1])
	}

	key := DeriveKey(passphrase, header[len(magic)+2:])
	defer zero(key)
	c, err := adaptive.NewWithType(key, typ)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(data[headerLength:], header)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
