package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// TicketConfig tunes the ticket registry.
type TicketConfig struct {
	// TTL is the lifetime of a ticket record, refreshed on every claim
	// change.
	TTL time.Duration
}

// DefaultTicketConfig returns the default configuration.
func DefaultTicketConfig() TicketConfig {
	return TicketConfig{TTL: DefaultTicketTTL}
}

// TicketRegistry tracks open support and review tickets and which
// administrator holds each one.
//
// Claim and Release are compare-and-swap loops on the single ticket record,
// so two administrators racing for one ticket cannot both win.
type TicketRegistry struct {
	store     storage.Store
	cfg       TicketConfig
	scheduler *AutoCloseScheduler
	metrics   *metric.Registry
	logger    *slog.Logger
	now       func() time.Time
}

// NewTicketRegistry creates a registry. scheduler and metrics may be nil.
func NewTicketRegistry(store storage.Store, cfg TicketConfig, scheduler *AutoCloseScheduler, logger *slog.Logger, metrics *metric.Registry) *TicketRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTicketTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketRegistry{
		store:     store,
		cfg:       cfg,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger.With("component", "tickets"),
		now:       time.Now,
	}
}

// Open records a new ticket and arms its auto-close timer.
//
// The registry does not check for an existing ticket of the same member
// and type; the caller's channel lookup is the only guard.
func (r *TicketRegistry) Open(ctx context.Context, channelID, memberID string, typ domain.TicketType) (*domain.Ticket, error) {
	t := domain.NewTicket(channelID, memberID, typ)
	t.CreatedAt = r.now().UnixMilli()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	data, err := t.Marshal()
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	if err := r.store.Set(ctx, ticketKey(channelID), data, r.cfg.TTL); err != nil {
		return nil, err
	}

	if r.scheduler != nil {
		r.scheduler.Arm(channelID, t.Created())
	}
	if r.metrics != nil {
		r.metrics.TicketsOpened.WithLabelValues(string(typ)).Inc()
	}
	r.logger.InfoContext(ctx, "ticket opened",
		"channel", channelID,
		"member", memberID,
		"type", typ)

	return t, nil
}

func (r *TicketRegistry) load(ctx context.Context, channelID string) (*domain.Ticket, []byte, error) {
	raw, err := r.store.Get(ctx, ticketKey(channelID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil, domain.ErrTicketNotFound.WithDetails(channelID)
	}
	if err != nil {
		return nil, nil, err
	}
	t, err := domain.UnmarshalTicket(raw)
	if err != nil {
		return nil, nil, err
	}
	return t, raw, nil
}

// Get returns the ticket for a channel.
func (r *TicketRegistry) Get(ctx context.Context, channelID string) (*domain.Ticket, error) {
	if channelID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("channel is required")
	}
	t, _, err := r.load(ctx, channelID)
	return t, err
}

// mutate applies fn to the ticket with compare-and-swap. Losers re-read
// and re-evaluate fn against the winner's write. fn returns nil to leave
// the record unchanged.
func (r *TicketRegistry) mutate(ctx context.Context, channelID string, fn func(t *domain.Ticket) (*domain.Ticket, error)) (*domain.Ticket, error) {
	for i := 0; i < maxCASRetries; i++ {
		cur, raw, err := r.load(ctx, channelID)
		if err != nil {
			return nil, err
		}

		next, err := fn(cur.Clone())
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}

		next.Version++
		if err := next.Validate(); err != nil {
			return nil, err
		}
		data, err := next.Marshal()
		if err != nil {
			return nil, domain.ErrInternal.WithCause(err)
		}

		ok, err := r.store.CompareAndSwap(ctx, ticketKey(channelID), raw, data, r.cfg.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, domain.ErrTicketConflict.WithDetails(channelID)
}

// Claim gives the ticket to an administrator. Claiming a ticket one
// already holds succeeds; a ticket held by someone else is left unchanged
// and ErrTicketAlreadyClaimed names the holder.
func (r *TicketRegistry) Claim(ctx context.Context, channelID, adminID string) (*domain.Ticket, error) {
	if channelID == "" || adminID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("channel and admin are required")
	}

	t, err := r.mutate(ctx, channelID, func(t *domain.Ticket) (*domain.Ticket, error) {
		switch t.ClaimedBy {
		case adminID:
			return nil, nil
		case "":
			t.ClaimedBy = adminID
			t.Status = domain.TicketClaimed
			return t, nil
		default:
			return nil, domain.ErrTicketAlreadyClaimed.WithDetails(t.ClaimedBy)
		}
	})

	r.countClaim(err)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "ticket claimed", "channel", channelID, "admin", adminID)
	return t, nil
}

// Release hands a claimed ticket back. Only the current holder may
// release it.
func (r *TicketRegistry) Release(ctx context.Context, channelID, adminID string) (*domain.Ticket, error) {
	if channelID == "" || adminID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("channel and admin are required")
	}

	t, err := r.mutate(ctx, channelID, func(t *domain.Ticket) (*domain.Ticket, error) {
		if t.ClaimedBy != adminID {
			return nil, domain.ErrUnauthorized.WithDetails("only the claimant can release a ticket")
		}
		t.ClaimedBy = ""
		t.Status = domain.TicketOpen
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "ticket released", "channel", channelID, "admin", adminID)
	return t, nil
}

// Close deletes the ticket record and cancels its auto-close timer.
// Closing an unknown ticket succeeds.
func (r *TicketRegistry) Close(ctx context.Context, channelID string) error {
	if channelID == "" {
		return domain.ErrMissingArgument.WithDetails("channel is required")
	}
	if r.scheduler != nil {
		r.scheduler.Cancel(channelID)
	}
	if err := r.store.Delete(ctx, ticketKey(channelID)); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "ticket closed", "channel", channelID)
	return nil
}

// RestoreTimers re-arms auto-close timers for every stored ticket. Timers
// live in process memory, so a restarted server calls this once at boot.
func (r *TicketRegistry) RestoreTimers(ctx context.Context) (int, error) {
	if r.scheduler == nil {
		return 0, nil
	}

	var channels []string
	err := r.store.ScanPrefix(ctx, ticketPrefix, func(key string) bool {
		channels = append(channels, key[len(ticketPrefix):])
		return true
	})
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, ch := range channels {
		t, _, err := r.load(ctx, ch)
		if errors.Is(err, domain.ErrTicketNotFound) {
			continue
		}
		if err != nil {
			r.logger.WarnContext(ctx, "skipping unreadable ticket", "channel", ch, "error", err)
			continue
		}
		r.scheduler.Arm(ch, t.Created())
		armed++
	}

	r.logger.InfoContext(ctx, "auto-close timers restored", "count", armed)
	return armed, nil
}

func (r *TicketRegistry) countClaim(err error) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrTicketAlreadyClaimed):
		result = "already_claimed"
	case errors.Is(err, domain.ErrTicketConflict):
		result = "conflict"
	case err != nil:
		result = "error"
	}
	r.metrics.TicketClaims.WithLabelValues(result).Inc()
}
