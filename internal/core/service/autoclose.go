package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// DefaultAutoCloseNotice is posted into a channel before it is removed.
const DefaultAutoCloseNotice = "This ticket was closed automatically because nobody wrote in it. Open a new one if you still need help."

// AutoCloseConfig tunes the scheduler.
type AutoCloseConfig struct {
	// Delay is the quiet period after ticket creation.
	Delay time.Duration

	// Notice is posted before the channel is deleted.
	Notice string

	// FireTimeout bounds the gateway calls of one firing.
	FireTimeout time.Duration

	// GatewayRate and GatewayBurst limit gateway calls across all firings.
	GatewayRate  rate.Limit
	GatewayBurst int
}

// DefaultAutoCloseConfig returns the default configuration.
func DefaultAutoCloseConfig() AutoCloseConfig {
	return AutoCloseConfig{
		Delay:        DefaultAutoCloseDelay,
		Notice:       DefaultAutoCloseNotice,
		FireTimeout:  30 * time.Second,
		GatewayRate:  rate.Limit(5),
		GatewayBurst: 5,
	}
}

// Auto-close outcomes.
const (
	OutcomeClosed    = "closed"
	OutcomeKept      = "kept"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// armed is one pending timer. Its address identifies the generation, so a
// timer replaced by Arm cannot act when it fires late.
type armed struct {
	timer *time.Timer
	since time.Time
}

// AutoCloseScheduler closes tickets nobody wrote in.
//
// Each ticket gets one timer. When it fires the scheduler asks the gateway
// whether a participant posted since creation; if not, it posts a notice,
// deletes the channel and drops the ticket record. Timers never re-arm.
type AutoCloseScheduler struct {
	store   storage.Store
	gateway ChannelGateway
	cfg     AutoCloseConfig
	limiter *rate.Limiter
	metrics *metric.Registry
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	timers  map[string]*armed
	stopped bool
	wg      sync.WaitGroup

	// onFired is a test hook called after each firing with its outcome.
	onFired func(channelID, outcome string)
}

// NewAutoCloseScheduler creates a scheduler. metrics may be nil.
func NewAutoCloseScheduler(store storage.Store, gateway ChannelGateway, cfg AutoCloseConfig, logger *slog.Logger, metrics *metric.Registry) *AutoCloseScheduler {
	def := DefaultAutoCloseConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.Notice == "" {
		cfg.Notice = def.Notice
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = def.FireTimeout
	}
	if cfg.GatewayRate <= 0 {
		cfg.GatewayRate = def.GatewayRate
	}
	if cfg.GatewayBurst <= 0 {
		cfg.GatewayBurst = def.GatewayBurst
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AutoCloseScheduler{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.GatewayRate, cfg.GatewayBurst),
		metrics: metrics,
		logger:  logger.With("component", "autoclose"),
		now:     time.Now,
		timers:  make(map[string]*armed),
	}
}

// Arm schedules the close check for createdAt + Delay, replacing any timer
// already armed for the channel. A deadline in the past fires immediately.
func (s *AutoCloseScheduler) Arm(channelID string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[channelID]; ok {
		prev.timer.Stop()
	} else if s.metrics != nil {
		s.metrics.AutoCloseArmed.Inc()
	}

	delay := createdAt.Add(s.cfg.Delay).Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	a := &armed{since: createdAt}
	a.timer = time.AfterFunc(delay, func() { s.onTimer(channelID, a) })
	s.timers[channelID] = a
}

// Cancel drops the armed timer for a channel and reports whether one was
// pending.
func (s *AutoCloseScheduler) Cancel(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.timers[channelID]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(s.timers, channelID)
	if s.metrics != nil {
		s.metrics.AutoCloseArmed.Dec()
		s.metrics.AutoCloseOutcome.WithLabelValues(OutcomeCancelled).Inc()
	}
	return true
}

// Pending returns the number of armed timers.
func (s *AutoCloseScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer and waits for running checks to finish.
func (s *AutoCloseScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for ch, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, ch)
	}
	if s.metrics != nil {
		s.metrics.AutoCloseArmed.Set(0)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AutoCloseScheduler) onTimer(channelID string, a *armed) {
	s.mu.Lock()
	if cur, ok := s.timers[channelID]; !ok || cur != a || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, channelID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.AutoCloseArmed.Dec()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()

	outcome := s.fire(ctx, channelID, a.since)
	if s.metrics != nil {
		s.metrics.AutoCloseOutcome.WithLabelValues(outcome).Inc()
	}
	if s.onFired != nil {
		s.onFired(channelID, outcome)
	}
}

// fire runs the close check for one channel and returns its outcome.
func (s *AutoCloseScheduler) fire(ctx context.Context, channelID string, since time.Time) string {
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.WarnContext(ctx, "auto-close check skipped", "channel", channelID, "error", err)
		return OutcomeError
	}

	active, err := s.gateway.HasParticipantMessages(ctx, channelID, since)
	if err != nil {
		s.logger.WarnContext(ctx, "auto-close activity check failed", "channel", channelID, "error", err)
		return OutcomeError
	}
	if active {
		s.logger.DebugContext(ctx, "ticket has activity, keeping it", "channel", channelID)
		return OutcomeKept
	}

	if err := s.gateway.PostNotice(ctx, channelID, s.cfg.Notice); err != nil {
		s.logger.WarnContext(ctx, "auto-close notice not posted", "channel", channelID, "error", err)
	}
	if err := s.gateway.DeleteChannel(ctx, channelID); err != nil {
		s.logger.ErrorContext(ctx, "auto-close channel deletion failed", "channel", channelID, "error", err)
		return OutcomeError
	}
	if err := s.store.Delete(ctx, ticketKey(channelID)); err != nil {
		s.logger.WarnContext(ctx, "ticket record not removed", "channel", channelID, "error", err)
	}

	s.logger.InfoContext(ctx, "ticket closed for inactivity", "channel", channelID)
	return OutcomeClosed
}
