package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

func TestAutoClose_Fire(t *testing.T) {
	tests := []struct {
		name        string
		messages    int
		checkErr    error
		want        string
		wantDeleted bool
		wantNotice  bool
	}{
		{"no messages closes", 0, nil, OutcomeClosed, true, true},
		{"one message keeps", 1, nil, OutcomeKept, false, false},
		{"many messages keep", 7, nil, OutcomeKept, false, false},
		{"gateway error keeps", 0, errors.New("rate limited"), OutcomeError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore()
			gw := newFakeGateway()
			gw.checkErr = tt.checkErr
			for i := 0; i < tt.messages; i++ {
				gw.post("ch")
			}

			s := NewAutoCloseScheduler(store, gw, DefaultAutoCloseConfig(), discardLogger(), nil)
			r := NewTicketRegistry(store, DefaultTicketConfig(), nil, discardLogger(), nil)
			tk, err := r.Open(ctx, "ch", "m", domain.TicketSupport)
			if err != nil {
				t.Fatal(err)
			}

			if got := s.fire(ctx, "ch", tk.Created()); got != tt.want {
				t.Errorf("fire() = %s, want %s", got, tt.want)
			}
			if gw.wasDeleted("ch") != tt.wantDeleted {
				t.Errorf("channel deleted = %v, want %v", gw.wasDeleted("ch"), tt.wantDeleted)
			}
			if (gw.noticeCount("ch") == 1) != tt.wantNotice {
				t.Errorf("notices = %d", gw.noticeCount("ch"))
			}

			_, err = r.Get(ctx, "ch")
			if tt.wantDeleted && !errors.Is(err, domain.ErrTicketNotFound) {
				t.Errorf("ticket record kept after close: %v", err)
			}
			if !tt.wantDeleted && err != nil {
				t.Errorf("ticket record removed: %v", err)
			}
		})
	}
}

func TestAutoClose_DeleteFailure(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.deleteErr = errors.New("missing permission")

	s := NewAutoCloseScheduler(newTestStore(), gw, DefaultAutoCloseConfig(), discardLogger(), nil)
	if got := s.fire(ctx, "ch", time.Now()); got != OutcomeError {
		t.Errorf("fire() = %s, want %s", got, OutcomeError)
	}
}

func TestAutoClose_TimerFires(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	gw := newFakeGateway()
	metrics := metric.NewRegistry()

	s := NewAutoCloseScheduler(store, gw, AutoCloseConfig{Delay: 20 * time.Millisecond}, discardLogger(), metrics)
	defer s.Stop()
	fired := make(chan string, 2)
	s.onFired = func(channelID, outcome string) { fired <- channelID + ":" + outcome }

	r := NewTicketRegistry(store, DefaultTicketConfig(), s, discardLogger(), metrics)
	if _, err := r.Open(ctx, "quiet", "m", domain.TicketSupport); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(ctx, "busy", "m", domain.TicketSupport); err != nil {
		t.Fatal(err)
	}
	gw.post("busy")

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-fired:
			got[ev] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timer did not fire")
		}
	}

	if !got["quiet:closed"] || !got["busy:kept"] {
		t.Errorf("outcomes = %v", got)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after firing", s.Pending())
	}
	if _, err := r.Get(ctx, "busy"); err != nil {
		t.Errorf("busy ticket removed: %v", err)
	}
}

func TestAutoClose_CancelAndRearm(t *testing.T) {
	gw := newFakeGateway()
	s := NewAutoCloseScheduler(newTestStore(), gw, AutoCloseConfig{Delay: 30 * time.Millisecond}, discardLogger(), nil)
	defer s.Stop()
	fired := make(chan string, 4)
	s.onFired = func(channelID, outcome string) { fired <- channelID }

	s.Arm("a", time.Now())
	if !s.Cancel("a") {
		t.Fatal("Cancel() = false, want true")
	}
	if s.Cancel("a") {
		t.Error("second Cancel() = true, want false")
	}

	// Re-arming replaces the pending timer; only one firing happens.
	s.Arm("b", time.Now())
	s.Arm("b", time.Now())
	if s.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", s.Pending())
	}

	select {
	case ch := <-fired:
		if ch != "b" {
			t.Errorf("fired %s, want b", ch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case ch := <-fired:
		t.Errorf("unexpected firing for %s", ch)
	case <-time.After(150 * time.Millisecond):
	}
	if gw.wasDeleted("a") {
		t.Error("cancelled ticket channel deleted")
	}
}

func TestAutoClose_Stop(t *testing.T) {
	s := NewAutoCloseScheduler(newTestStore(), newFakeGateway(), AutoCloseConfig{Delay: time.Hour}, discardLogger(), nil)
	s.Arm("a", time.Now())
	s.Arm("b", time.Now())
	s.Stop()

	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop", s.Pending())
	}
	s.Arm("c", time.Now())
	if s.Pending() != 0 {
		t.Error("Arm() after Stop scheduled a timer")
	}
}
