package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// Invocation describes one inbound command.
type Invocation struct {
	// ID identifies the delivery. Redeliveries of one command share it.
	ID string

	// ActorID is the chat user who issued the command.
	ActorID string

	// DisplayName is the actor's display name, recorded as owner name on
	// self-service issuance.
	DisplayName string

	// Admin is the frontend's verdict on the actor's role.
	Admin bool
}

// DeskConfig bundles the component configurations.
type DeskConfig struct {
	Keys      KeyPoolConfig
	Tickets   TicketConfig
	AutoClose AutoCloseConfig
	DedupTTL  time.Duration
}

// DefaultDeskConfig returns the default configuration.
func DefaultDeskConfig() DeskConfig {
	return DeskConfig{
		Keys:      DefaultKeyPoolConfig(),
		Tickets:   DefaultTicketConfig(),
		AutoClose: DefaultAutoCloseConfig(),
		DedupTTL:  DefaultDedupTTL,
	}
}

// Desk is the command surface handed to a chat frontend. It owns one
// instance of every component and applies the admin check and the
// duplicate-invocation guard before each operation.
type Desk struct {
	Keys      *KeyPool
	Tickets   *TicketRegistry
	AutoClose *AutoCloseScheduler
	Dedup     *DedupGuard

	logger *slog.Logger
}

// NewDesk wires a desk over a store. metrics may be nil.
func NewDesk(store storage.Store, courier Courier, gateway ChannelGateway, cfg DeskConfig, log *slog.Logger, metrics *metric.Registry) *Desk {
	if log == nil {
		log = slog.Default()
	}

	scheduler := NewAutoCloseScheduler(store, gateway, cfg.AutoClose, log, metrics)
	return &Desk{
		Keys:      NewKeyPool(store, courier, cfg.Keys, log, metrics),
		Tickets:   NewTicketRegistry(store, cfg.Tickets, scheduler, log, metrics),
		AutoClose: scheduler,
		Dedup:     NewDedupGuard(store, cfg.DedupTTL, log, metrics),
		logger:    log,
	}
}

// Start re-arms auto-close timers for tickets that survived a restart.
func (d *Desk) Start(ctx context.Context) error {
	_, err := d.Tickets.RestoreTimers(ctx)
	return err
}

// Stop cancels pending auto-close timers and waits for running checks.
func (d *Desk) Stop() {
	d.AutoClose.Stop()
}

// begin runs the admin check, then the duplicate guard. The admin check
// comes first so a rejected call does not burn the invocation ID.
func (d *Desk) begin(ctx context.Context, inv Invocation, adminOnly bool) (context.Context, error) {
	if adminOnly && !inv.Admin {
		d.logger.WarnContext(ctx, "admin command refused",
			"invocation", inv.ID,
			"actor", inv.ActorID)
		return ctx, domain.ErrUnauthorized.WithDetails("administrator role required")
	}
	if !d.Dedup.Acquire(ctx, inv.ID) {
		return ctx, domain.ErrDuplicateInvocation.WithDetails(inv.ID)
	}
	ctx = logger.WithInvocationID(ctx, inv.ID)
	return ctx, nil
}

// ============================================================================
// Member commands
// ============================================================================

// IssueRandom gives the invoking member one key, once.
func (d *Desk) IssueRandom(ctx context.Context, inv Invocation) (*domain.Key, error) {
	ctx, err := d.begin(ctx, inv, false)
	if err != nil {
		return nil, err
	}
	return d.Keys.IssueRandom(ctx, Recipient{ID: inv.ActorID, DisplayName: inv.DisplayName})
}

// MarkUsed records a redemption.
func (d *Desk) MarkUsed(ctx context.Context, inv Invocation, keyID string, usage domain.UsageRecord) error {
	ctx, err := d.begin(ctx, inv, false)
	if err != nil {
		return err
	}
	return d.Keys.MarkUsed(ctx, keyID, usage)
}

// Available returns the pool size.
func (d *Desk) Available(ctx context.Context, inv Invocation) (int64, error) {
	ctx, err := d.begin(ctx, inv, false)
	if err != nil {
		return 0, err
	}
	return d.Keys.Available(ctx)
}

// OpenTicket records a ticket for a channel the frontend just created for
// the invoking member.
func (d *Desk) OpenTicket(ctx context.Context, inv Invocation, channelID string, typ domain.TicketType) (*domain.Ticket, error) {
	ctx, err := d.begin(ctx, inv, false)
	if err != nil {
		return nil, err
	}
	return d.Tickets.Open(ctx, channelID, inv.ActorID, typ)
}

// ============================================================================
// Administrator commands
// ============================================================================

// IssueTo gives a key to a recipient on the invoking admin's behalf.
func (d *Desk) IssueTo(ctx context.Context, inv Invocation, recipient Recipient) (*domain.Key, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Keys.IssueTo(ctx, recipient, inv.ActorID)
}

// Inspect reports a key's status.
func (d *Desk) Inspect(ctx context.Context, inv Invocation, keyID string) (*domain.KeyStatus, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Keys.Inspect(ctx, keyID)
}

// Add puts a key into the pool.
func (d *Desk) Add(ctx context.Context, inv Invocation, keyID string) error {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return err
	}
	return d.Keys.Add(ctx, keyID)
}

// Reset returns a key to the pool.
func (d *Desk) Reset(ctx context.Context, inv Invocation, keyID string) error {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return err
	}
	return d.Keys.Reset(ctx, keyID)
}

// Claim gives a ticket to the invoking admin.
func (d *Desk) Claim(ctx context.Context, inv Invocation, channelID string) (*domain.Ticket, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Tickets.Claim(ctx, channelID, inv.ActorID)
}

// Release hands back a ticket the invoking admin holds.
func (d *Desk) Release(ctx context.Context, inv Invocation, channelID string) (*domain.Ticket, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Tickets.Release(ctx, channelID, inv.ActorID)
}

// CloseTicket drops a ticket record. Deleting the channel stays with the
// frontend.
func (d *Desk) CloseTicket(ctx context.Context, inv Invocation, channelID string) error {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return err
	}
	return d.Tickets.Close(ctx, channelID)
}

// Export returns issued and used keys for reporting.
func (d *Desk) Export(ctx context.Context, inv Invocation, filter ExportFilter) ([]*domain.KeyStatus, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Keys.Export(ctx, filter)
}

// ResetRecipient lets a recipient self-claim again.
func (d *Desk) ResetRecipient(ctx context.Context, inv Invocation, recipientID string) error {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return err
	}
	return d.Keys.ResetRecipient(ctx, recipientID)
}

// History lists keys ever issued to a recipient.
func (d *Desk) History(ctx context.Context, inv Invocation, recipientID string) ([]*domain.KeyStatus, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Keys.History(ctx, recipientID)
}

// Backfill records an owner for a key handed out outside the desk.
func (d *Desk) Backfill(ctx context.Context, inv Invocation, recipient Recipient, keyID string) error {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return err
	}
	return d.Keys.Backfill(ctx, recipient, keyID, inv.ActorID)
}

// PurgeUsage drops usage details older than the cutoff.
func (d *Desk) PurgeUsage(ctx context.Context, inv Invocation, olderThan time.Duration) (int, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return 0, err
	}
	return d.Keys.PurgeUsage(ctx, olderThan)
}

// UsageLog returns the newest redemption audit entries.
func (d *Desk) UsageLog(ctx context.Context, inv Invocation, limit int) ([]*domain.UsageLogEntry, error) {
	ctx, err := d.begin(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	return d.Keys.UsageLog(ctx, limit)
}
