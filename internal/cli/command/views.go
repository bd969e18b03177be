package command

import (
	"github.com/yndnr/keydesk/internal/core/domain"
)

// keyView is one key as the CLI shows it.
type keyView struct {
	Key       string                `json:"key"`
	Status    domain.Classification `json:"status"`
	Recipient string                `json:"recipient,omitempty"`
	Name      string                `json:"display_name,omitempty" table:"wide,header=NAME"`
	Method    domain.IssueMethod    `json:"method,omitempty" table:"wide"`
	IssuedBy  string                `json:"issued_by,omitempty" table:"wide"`
	IssuedAt  int64                 `json:"issued_at,omitempty" table:"ms"`
	UsedAt    int64                 `json:"used_at,omitempty" table:"ms"`
	Origin    string                `json:"origin,omitempty" table:"wide"`
	Client    string                `json:"client,omitempty" table:"wide"`
}

func newKeyView(st *domain.KeyStatus) keyView {
	v := keyView{Key: st.ID, Status: st.Classification}
	if o := st.Owner; o != nil {
		v.Recipient = o.RecipientID
		v.Name = o.DisplayName
		v.Method = o.Method
		v.IssuedBy = o.IssuedBy
		v.IssuedAt = o.IssuedAt
	}
	if u := st.Usage; u != nil {
		v.UsedAt = u.UsedAt
		v.Origin = u.OriginAddr
		v.Client = u.ClientDescriptor
	}
	return v
}

func newKeyViews(list []*domain.KeyStatus) []keyView {
	views := make([]keyView, 0, len(list))
	for _, st := range list {
		views = append(views, newKeyView(st))
	}
	return views
}

// issuedView is the result of an admin-directed issuance.
type issuedView struct {
	Key       string             `json:"key"`
	Recipient string             `json:"recipient"`
	Method    domain.IssueMethod `json:"method"`
	IssuedAt  int64              `json:"issued_at" table:"ms"`
}

func newIssuedView(k *domain.Key) issuedView {
	v := issuedView{Key: k.ID}
	if o := k.Owner; o != nil {
		v.Recipient = o.RecipientID
		v.Method = o.Method
		v.IssuedAt = o.IssuedAt
	}
	return v
}

// ticketView is one ticket record.
type ticketView struct {
	Channel   string              `json:"channel_id"`
	Member    string              `json:"member_id"`
	Type      domain.TicketType   `json:"type"`
	Status    domain.TicketStatus `json:"status"`
	ClaimedBy string              `json:"claimed_by,omitempty"`
	CreatedAt int64               `json:"created_at" table:"ms"`
	Version   uint64              `json:"version" table:"wide"`
}

func newTicketView(t *domain.Ticket) ticketView {
	return ticketView{
		Channel:   t.ChannelID,
		Member:    t.MemberID,
		Type:      t.Type,
		Status:    t.Status,
		ClaimedBy: t.ClaimedBy,
		CreatedAt: t.CreatedAt,
		Version:   t.Version,
	}
}

// usageView is one redemption audit entry.
type usageView struct {
	ID     string `json:"id" table:"wide"`
	Key    string `json:"key"`
	UsedAt int64  `json:"used_at" table:"ms"`
	Origin string `json:"origin_addr,omitempty"`
}

func newUsageViews(list []*domain.UsageLogEntry) []usageView {
	views := make([]usageView, 0, len(list))
	for _, e := range list {
		views = append(views, usageView{ID: e.ID, Key: e.MaskedKey, UsedAt: e.UsedAt, Origin: e.OriginAddr})
	}
	return views
}
