package localserver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/keydesk/internal/telemetry/logger"
)

type fakePool struct{ n int64 }

func (f fakePool) Available(context.Context) (int64, error) { return f.n, nil }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeTimers struct{ n int }

func (f fakeTimers) Pending() int { return f.n }

// socketPath returns a short path; Unix socket paths are length limited.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

func startServer(t *testing.T, h *Handler) string {
	t.Helper()
	path := socketPath(t)
	srv := New(path, h, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return path
}

func call(t *testing.T, path, cmd string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Call(ctx, path, cmd, args...)
}

func TestHandler_Execute(t *testing.T) {
	restore := logger.GetLevel()
	t.Cleanup(func() { logger.SetLevel(restore) })

	h := NewHandler(fakePool{n: 7}, fakePinger{}, fakeTimers{n: 2}, nil)

	tests := []struct {
		name    string
		cmd     string
		args    []string
		want    []string
		wantErr bool
	}{
		{"ping", "ping", nil, []string{"pong"}, false},
		{"status", "status", nil, []string{"store: ok", "available_keys: 7", "pending_autoclose: 2", "version: "}, false},
		{"log level show", "log-level", nil, []string{"log_level: "}, false},
		{"log level set", "log-level", []string{"DEBUG"}, []string{"log_level: debug"}, false},
		{"log level bad", "log-level", []string{"loud"}, nil, true},
		{"log level extra", "log-level", []string{"info", "debug"}, nil, true},
		{"shutdown unavailable", "shutdown", nil, nil, true},
		{"empty", "", nil, nil, true},
		{"unknown", "drain", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := h.Execute(context.Background(), &buf, tt.cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestHandler_StatusStoreDown(t *testing.T) {
	h := NewHandler(nil, fakePinger{err: errors.New("connection refused")}, nil, nil)

	var buf bytes.Buffer
	if err := h.Execute(context.Background(), &buf, "status", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(buf.String(), "store: unavailable (connection refused)") {
		t.Errorf("status = %q", buf.String())
	}
	if strings.Contains(buf.String(), "available_keys") {
		t.Errorf("status without pool reported keys: %q", buf.String())
	}
}

func TestServer_RoundTrip(t *testing.T) {
	var stopped atomic.Bool
	path := startServer(t, NewHandler(fakePool{n: 3}, fakePinger{}, fakeTimers{}, func() { stopped.Store(true) }))

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	reply, err := call(t, path, "ping")
	if err != nil || reply != "pong\n" {
		t.Fatalf("ping = %q, %v", reply, err)
	}

	reply, err = call(t, path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(reply, "available_keys: 3") {
		t.Errorf("status = %q", reply)
	}

	if _, err := call(t, path, "bogus"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("bogus error = %v", err)
	}

	reply, err = call(t, path, "shutdown")
	if err != nil || !strings.Contains(reply, "shutting down") {
		t.Fatalf("shutdown = %q, %v", reply, err)
	}
	if !stopped.Load() {
		t.Error("shutdown callback not called")
	}
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	h := NewHandler(nil, nil, nil, nil)

	first := New(path, h, nil)
	if err := first.Listen(); err != nil {
		t.Fatal(err)
	}
	if err := New(path, h, nil).Listen(); err == nil {
		t.Fatal("second Listen on live socket succeeded")
	}

	// Closing the listener without unlinking leaves a stale file behind.
	first.listener.(interface{ SetUnlinkOnClose(bool) }).SetUnlinkOnClose(false)
	first.Shutdown(context.Background())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	second := New(path, h, nil)
	if err := second.Listen(); err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	second.Shutdown(context.Background())
}

func TestCall_NoServer(t *testing.T) {
	if _, err := call(t, socketPath(t), "ping"); err == nil {
		t.Fatal("Call without server succeeded")
	}
}
