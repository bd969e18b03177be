package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// DedupGuard drops repeated deliveries of one command invocation.
//
// It fails open: when the store is unreachable every invocation proceeds.
type DedupGuard struct {
	store   storage.Store
	ttl     time.Duration
	metrics *metric.Registry
	logger  *slog.Logger
}

// NewDedupGuard creates a guard whose tokens live for ttl.
func NewDedupGuard(store storage.Store, ttl time.Duration, logger *slog.Logger, metrics *metric.Registry) *DedupGuard {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupGuard{
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With("component", "dedup"),
	}
}

// Acquire reports whether the invocation may proceed. false means another
// delivery of the same invocation is in flight or was handled recently.
func (g *DedupGuard) Acquire(ctx context.Context, invocationID string) bool {
	if invocationID == "" {
		g.count("proceed")
		return true
	}

	ok, err := g.store.SetNX(ctx, dedupKey(invocationID), []byte("1"), g.ttl)
	if err != nil {
		g.logger.WarnContext(ctx, "dedup store unavailable, proceeding", "invocation", invocationID, "error", err)
		g.count("fail_open")
		return true
	}
	if !ok {
		g.logger.DebugContext(ctx, "duplicate invocation dropped", "invocation", invocationID)
		g.count("duplicate")
		return false
	}
	g.count("proceed")
	return true
}

func (g *DedupGuard) count(decision string) {
	if g.metrics != nil {
		g.metrics.DedupDecisions.WithLabelValues(decision).Inc()
	}
}
