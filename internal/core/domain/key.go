package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Key constraints.
const (
	MaxKeyIDLength       = 256
	MaxRecipientIDLength = 128
	MaxDisplayNameLength = 256
	MaxClientDescLength  = 512
	MaxOriginAddrLength  = 64
)

// KeyState is the lifecycle state of a redeemable key.
// A key is in exactly one state at any instant.
type KeyState string

const (
	// KeyValid means the key sits in the pool and may be issued.
	KeyValid KeyState = "valid"
	// KeyIssued means the key was handed to a recipient but not redeemed yet.
	KeyIssued KeyState = "issued"
	// KeyUsed means the key was redeemed. It is not re-issuable until reset.
	KeyUsed KeyState = "used"
)

// IssueMethod records how a key reached its owner.
type IssueMethod string

const (
	// IssueSelfService is a first-claim-wins self-service issuance.
	IssueSelfService IssueMethod = "self-service"
	// IssueAdminGrant is an admin-directed issuance.
	IssueAdminGrant IssueMethod = "admin-grant"
	// IssueBackfill is an owner record written by an admin after the fact.
	IssueBackfill IssueMethod = "backfill"
)

// OwnerRecord describes who received a key.
type OwnerRecord struct {
	RecipientID string      `json:"recipient_id"`
	DisplayName string      `json:"display_name,omitempty"`
	IssuedAt    int64       `json:"issued_at"`
	Method      IssueMethod `json:"method"`
	IssuedBy    string      `json:"issued_by,omitempty"`
}

// UsageRecord describes a redemption.
type UsageRecord struct {
	UsedAt           int64  `json:"used_at"`
	OriginAddr       string `json:"origin_addr,omitempty"`
	ClientDescriptor string `json:"client_descriptor,omitempty"`
	RecipientID      string `json:"recipient_id,omitempty"`
}

// Key is the single persisted record of a redeemable key.
type Key struct {
	ID      string       `json:"id"`
	State   KeyState     `json:"state"`
	Owner   *OwnerRecord `json:"owner,omitempty"`
	Usage   *UsageRecord `json:"usage,omitempty"`
	Version uint64       `json:"version"`

	// UpdatedAt is the last mutation timestamp (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at"`
}

// NewKey creates a pool-fresh key record.
func NewKey(id string) *Key {
	return &Key{
		ID:        id,
		State:     KeyValid,
		Version:   1,
		UpdatedAt: time.Now().UnixMilli(),
	}
}

// NormalizeKeyID trims surrounding whitespace from a key as pasted by a user.
func NormalizeKeyID(id string) string {
	return strings.TrimSpace(id)
}

// ValidateKeyID checks a normalized key ID.
func ValidateKeyID(id string) error {
	if id == "" {
		return ErrMissingArgument.WithDetails("key is required")
	}
	if len(id) > MaxKeyIDLength {
		return ErrInvalidArgument.WithDetails("key too long")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return ErrInvalidArgument.WithDetails("key must not contain whitespace")
	}
	return nil
}

// ValidateRecipientID checks a recipient or administrator identifier.
func ValidateRecipientID(id string) error {
	if id == "" {
		return ErrMissingArgument.WithDetails("recipient id is required")
	}
	if len(id) > MaxRecipientIDLength {
		return ErrInvalidArgument.WithDetails("recipient id too long")
	}
	return nil
}

// TruncateUTF8 shortens s to at most n bytes without splitting a
// multi-byte sequence.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Validate checks record consistency: an issued key carries an owner, a used
// key carries a usage record, a valid key carries neither usage nor owner.
func (k *Key) Validate() error {
	if err := ValidateKeyID(k.ID); err != nil {
		return err
	}
	switch k.State {
	case KeyValid:
		if k.Usage != nil {
			return ErrInvalidArgument.WithDetails("valid key must not carry a usage record")
		}
	case KeyIssued:
		if k.Owner == nil {
			return ErrInvalidArgument.WithDetails("issued key requires an owner record")
		}
	case KeyUsed:
		if k.Usage == nil {
			return ErrInvalidArgument.WithDetails("used key requires a usage record")
		}
	default:
		return ErrInvalidArgument.WithDetails("unknown key state " + string(k.State))
	}
	if k.Usage != nil && len(k.Usage.ClientDescriptor) > MaxClientDescLength {
		return ErrInvalidArgument.WithDetails("client descriptor too long")
	}
	return nil
}

// IsUsed reports whether the key has been redeemed.
// This is the one canonical used-flag check.
func (k *Key) IsUsed() bool {
	return k != nil && k.State == KeyUsed
}

// Touch bumps the version and update timestamp before a write.
func (k *Key) Touch() {
	k.Version++
	k.UpdatedAt = time.Now().UnixMilli()
}

// Clone returns a deep copy.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	c := *k
	if k.Owner != nil {
		o := *k.Owner
		c.Owner = &o
	}
	if k.Usage != nil {
		u := *k.Usage
		c.Usage = &u
	}
	return &c
}

// Marshal encodes the record for storage.
func (k *Key) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// UnmarshalKey decodes a stored key record.
func UnmarshalKey(data []byte) (*Key, error) {
	var k Key
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, ErrInternal.WithDetails("decode key record").WithCause(err)
	}
	return &k, nil
}

// MaskKey hides all but the first four characters of a key for display and logs.
func MaskKey(id string) string {
	if len(id) <= 4 {
		return "***"
	}
	return id[:4] + "***"
}

// Classification is the externally visible status of a key.
type Classification string

const (
	ClassAvailable     Classification = "available"
	ClassIssuedPending Classification = "issued-pending"
	ClassUsed          Classification = "used"
	ClassUnknown       Classification = "unknown"
)

// KeyStatus is the read-only aggregate returned by inspection.
type KeyStatus struct {
	ID             string         `json:"id"`
	Classification Classification `json:"status"`
	InPool         bool           `json:"in_pool"`
	InIssued       bool           `json:"in_issued"`
	Used           bool           `json:"used"`
	Owner          *OwnerRecord   `json:"owner,omitempty"`
	Usage          *UsageRecord   `json:"usage,omitempty"`
}

// Classify applies the precedence used > issued > valid > unknown.
func Classify(inPool, inIssued, used bool) Classification {
	switch {
	case used:
		return ClassUsed
	case inIssued:
		return ClassIssuedPending
	case inPool:
		return ClassAvailable
	default:
		return ClassUnknown
	}
}
