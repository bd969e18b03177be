package domain

import (
	"encoding/json"
	"time"
)

// TicketType distinguishes support tickets from community review tickets.
type TicketType string

const (
	TicketSupport TicketType = "support"
	TicketReview  TicketType = "review"
)

// ParseTicketType validates a ticket type string. Empty means support.
func ParseTicketType(s string) (TicketType, error) {
	switch TicketType(s) {
	case "", TicketSupport:
		return TicketSupport, nil
	case TicketReview:
		return TicketReview, nil
	default:
		return "", ErrInvalidArgument.WithDetails("unknown ticket type " + s)
	}
}

// TicketStatus is the claim state of an open ticket.
// Closed tickets have no record at all.
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketClaimed TicketStatus = "claimed"
)

// Ticket is the persisted record of a support or review channel.
type Ticket struct {
	ChannelID string       `json:"channel_id"`
	MemberID  string       `json:"member_id"`
	Type      TicketType   `json:"type"`
	Status    TicketStatus `json:"status"`
	ClaimedBy string       `json:"claimed_by,omitempty"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewTicket creates an open, unclaimed ticket.
func NewTicket(channelID, memberID string, typ TicketType) *Ticket {
	return &Ticket{
		ChannelID: channelID,
		MemberID:  memberID,
		Type:      typ,
		Status:    TicketOpen,
		CreatedAt: time.Now().UnixMilli(),
		Version:   1,
	}
}

// Validate enforces ClaimedBy set iff Status is claimed.
func (t *Ticket) Validate() error {
	if t.ChannelID == "" {
		return ErrTicketValidation.WithDetails("channel_id is required")
	}
	if t.MemberID == "" {
		return ErrTicketValidation.WithDetails("member_id is required")
	}
	if t.Type != TicketSupport && t.Type != TicketReview {
		return ErrTicketValidation.WithDetails("invalid type " + string(t.Type))
	}
	switch t.Status {
	case TicketOpen:
		if t.ClaimedBy != "" {
			return ErrTicketValidation.WithDetails("open ticket must not have a claimant")
		}
	case TicketClaimed:
		if t.ClaimedBy == "" {
			return ErrTicketValidation.WithDetails("claimed ticket requires a claimant")
		}
	default:
		return ErrTicketValidation.WithDetails("invalid status " + string(t.Status))
	}
	return nil
}

// Created returns CreatedAt as a time.Time.
func (t *Ticket) Created() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// Clone returns a copy.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Marshal encodes the record for storage.
func (t *Ticket) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTicket decodes a stored ticket record.
func UnmarshalTicket(data []byte) (*Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, ErrInternal.WithDetails("decode ticket record").WithCause(err)
	}
	return &t, nil
}
