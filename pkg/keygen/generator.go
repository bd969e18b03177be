package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the symbol set of generated keys. Its size divides 256, so
// masking a random byte picks every symbol with equal probability.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Limits on a key format.
const (
	MaxGroups   = 16
	MaxGroupLen = 16
	MaxLength   = 256
)

// ErrInvalidFormat is returned for a format outside the limits.
var ErrInvalidFormat = errors.New("keygen: invalid key format")

// Format describes the shape of generated keys.
type Format struct {
	Prefix   string
	Groups   int
	GroupLen int
}

// DefaultFormat is four groups of five characters.
var DefaultFormat = Format{Groups: 4, GroupLen: 5}

// Length returns the length of keys in this format.
func (f Format) Length() int {
	if f.Groups <= 0 {
		return len(f.Prefix)
	}
	return len(f.Prefix) + f.Groups*f.GroupLen + f.Groups - 1
}

// Validate checks the format against the limits.
func (f Format) Validate() error {
	if f.Groups < 1 || f.Groups > MaxGroups {
		return fmt.Errorf("%w: groups must be 1..%d", ErrInvalidFormat, MaxGroups)
	}
	if f.GroupLen < 1 || f.GroupLen > MaxGroupLen {
		return fmt.Errorf("%w: group length must be 1..%d", ErrInvalidFormat, MaxGroupLen)
	}
	if strings.ContainsAny(f.Prefix, " \t\r\n") {
		return fmt.Errorf("%w: prefix must not contain whitespace", ErrInvalidFormat)
	}
	if f.Length() > MaxLength {
		return fmt.Errorf("%w: keys would exceed %d characters", ErrInvalidFormat, MaxLength)
	}
	return nil
}

// Generate returns one random key.
func Generate(f Format) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	raw := make([]byte, f.Groups*f.GroupLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("keygen: %w", err)
	}

	var b strings.Builder
	b.Grow(f.Length())
	b.WriteString(f.Prefix)
	for i, r := range raw {
		if i > 0 && i%f.GroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[int(r)&(len(Alphabet)-1)])
	}
	return b.String(), nil
}

// GenerateN returns n distinct random keys.
func GenerateN(f Format, n int) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative count", ErrInvalidFormat)
	}
	keys := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(keys) < n {
		k, err := Generate(f)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}
