package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// Metered decorates a Store with latency metrics and maps transport
// failures to domain.ErrStoreUnavailable.
//
// ErrKeyNotFound, ErrWrongType and context errors pass through unchanged.
type Metered struct {
	next    Store
	metrics *metric.Registry
	logger  *slog.Logger
}

var _ Store = (*Metered)(nil)

// NewMetered wraps next. A nil metrics registry disables recording.
func NewMetered(next Store, metrics *metric.Registry, logger *slog.Logger) *Metered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metered{next: next, metrics: metrics, logger: logger}
}

// Unwrap returns the decorated store.
func (m *Metered) Unwrap() Store {
	return m.next
}

func (m *Metered) observe(op string, start time.Time, err error) error {
	if m.metrics != nil {
		m.metrics.StoreOps.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err == nil ||
		errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrWrongType) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if m.metrics != nil {
		m.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
	m.logger.Warn("store operation failed", "op", op, "error", err)
	return domain.ErrStoreUnavailable.WithDetails(op).WithCause(err)
}

func (m *Metered) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := m.next.Get(ctx, key)
	return v, m.observe("get", start, err)
}

func (m *Metered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	return m.observe("set", start, m.next.Set(ctx, key, value, ttl))
}

func (m *Metered) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.SetNX(ctx, key, value, ttl)
	return ok, m.observe("setnx", start, err)
}

func (m *Metered) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.CompareAndSwap(ctx, key, old, next, ttl)
	return ok, m.observe("cas", start, err)
}

func (m *Metered) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	return m.observe("del", start, m.next.Delete(ctx, keys...))
}

func (m *Metered) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	start := time.Now()
	n, err := m.next.SAdd(ctx, key, members...)
	return n, m.observe("sadd", start, err)
}

func (m *Metered) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	start := time.Now()
	n, err := m.next.SRem(ctx, key, members...)
	return n, m.observe("srem", start, err)
}

func (m *Metered) SPop(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := m.next.SPop(ctx, key)
	return v, m.observe("spop", start, err)
}

func (m *Metered) SCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := m.next.SCard(ctx, key)
	return n, m.observe("scard", start, err)
}

func (m *Metered) SIsMember(ctx context.Context, key, member string) (bool, error) {
	start := time.Now()
	ok, err := m.next.SIsMember(ctx, key, member)
	return ok, m.observe("sismember", start, err)
}

func (m *Metered) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	v, err := m.next.SMembers(ctx, key)
	return v, m.observe("smembers", start, err)
}

func (m *Metered) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	start := time.Now()
	n, err := m.next.LPush(ctx, key, values...)
	return n, m.observe("lpush", start, err)
}

func (m *Metered) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	began := time.Now()
	v, err := m.next.LRange(ctx, key, start, stop)
	return v, m.observe("lrange", began, err)
}

func (m *Metered) LTrim(ctx context.Context, key string, start, stop int64) error {
	began := time.Now()
	return m.observe("ltrim", began, m.next.LTrim(ctx, key, start, stop))
}

func (m *Metered) ScanPrefix(ctx context.Context, prefix string, fn func(key string) bool) error {
	start := time.Now()
	return m.observe("scan", start, m.next.ScanPrefix(ctx, prefix, fn))
}

func (m *Metered) Ping(ctx context.Context) error {
	start := time.Now()
	return m.observe("ping", start, m.next.Ping(ctx))
}

func (m *Metered) Close() error {
	return m.next.Close()
}
