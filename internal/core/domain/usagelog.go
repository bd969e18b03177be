package domain

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Usage log constants.
const (
	// UsageLogLimit caps the redemption audit list.
	UsageLogLimit = 100

	// UsageEntryIDPrefix is the prefix for usage log entry IDs.
	UsageEntryIDPrefix = "kdu-"
)

// UsageLogEntry is one line of the redemption audit trail.
// The key itself is stored masked.
type UsageLogEntry struct {
	ID         string `json:"id"`
	MaskedKey  string `json:"key"`
	UsedAt     int64  `json:"used_at"`
	OriginAddr string `json:"origin_addr,omitempty"`
}

// NewUsageLogEntry builds an audit entry for a redemption.
func NewUsageLogEntry(keyID string, usage *UsageRecord) (*UsageLogEntry, error) {
	id, err := GenerateID(UsageEntryIDPrefix)
	if err != nil {
		return nil, err
	}
	e := &UsageLogEntry{
		ID:        id,
		MaskedKey: MaskKey(keyID),
		UsedAt:    time.Now().UnixMilli(),
	}
	if usage != nil {
		e.UsedAt = usage.UsedAt
		e.OriginAddr = usage.OriginAddr
	}
	return e, nil
}

// GenerateID returns prefix + lowercase ULID.
func GenerateID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// Marshal encodes the entry for storage.
func (e *UsageLogEntry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalUsageLogEntry decodes a stored audit entry.
func UnmarshalUsageLogEntry(data []byte) (*UsageLogEntry, error) {
	var e UsageLogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, ErrInternal.WithDetails("decode usage log entry").WithCause(err)
	}
	return &e, nil
}
