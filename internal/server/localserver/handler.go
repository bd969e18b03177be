package localserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yndnr/keydesk/internal/infra/buildinfo"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
)

// errorPrefix starts the reply of a failed command.
const errorPrefix = "error: "

// PoolCounter reports the number of issuable keys.
type PoolCounter interface {
	Available(ctx context.Context) (int64, error)
}

// Pinger checks the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TimerCounter reports pending auto-close timers.
type TimerCounter interface {
	Pending() int
}

// Handler executes control commands.
type Handler struct {
	keys     PoolCounter
	store    Pinger
	timers   TimerCounter
	shutdown func()
	started  time.Time
}

// NewHandler creates a handler. shutdown is called by the shutdown
// command; any dependency may be nil.
func NewHandler(keys PoolCounter, store Pinger, timers TimerCounter, shutdown func()) *Handler {
	return &Handler{
		keys:     keys,
		store:    store,
		timers:   timers,
		shutdown: shutdown,
		started:  time.Now(),
	}
}

// Execute runs one command and writes its reply to w.
func (h *Handler) Execute(ctx context.Context, w io.Writer, cmd string, args []string) error {
	switch cmd {
	case "status":
		return h.handleStatus(ctx, w)
	case "ping":
		_, err := io.WriteString(w, "pong\n")
		return err
	case "log-level":
		return h.handleLogLevel(w, args)
	case "shutdown":
		return h.handleShutdown(w)
	case "":
		return errors.New("empty command")
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (h *Handler) handleStatus(ctx context.Context, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "version: %s\n", buildinfo.String())
	fmt.Fprintf(&b, "uptime: %s\n", time.Since(h.started).Round(time.Second))
	fmt.Fprintf(&b, "log_level: %s\n", logger.GetLevel())

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			fmt.Fprintf(&b, "store: unavailable (%v)\n", err)
		} else {
			b.WriteString("store: ok\n")
		}
	}
	if h.keys != nil {
		if n, err := h.keys.Available(ctx); err == nil {
			fmt.Fprintf(&b, "available_keys: %d\n", n)
		}
	}
	if h.timers != nil {
		fmt.Fprintf(&b, "pending_autoclose: %d\n", h.timers.Pending())
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (h *Handler) handleLogLevel(w io.Writer, args []string) error {
	switch len(args) {
	case 0:
	case 1:
		if err := logger.SetLevel(args[0]); err != nil {
			return err
		}
	default:
		return errors.New("usage: log-level [LEVEL]")
	}
	_, err := fmt.Fprintf(w, "log_level: %s\n", logger.GetLevel())
	return err
}

func (h *Handler) handleShutdown(w io.Writer) error {
	if h.shutdown == nil {
		return errors.New("shutdown not available")
	}
	if _, err := io.WriteString(w, "shutting down\n"); err != nil {
		return err
	}
	h.shutdown()
	return nil
}
