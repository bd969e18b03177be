package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	return l, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"console", "msg=hello"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(Config{Level: "info", Format: tt.format, Output: &buf})
			if err != nil {
				t.Fatal(err)
			}
			l.Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q missing %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "warn")
	defer SetLevel("info")

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	SetLevel("debug")
	if GetLevel() != "debug" {
		t.Fatalf("GetLevel() = %s", GetLevel())
	}
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("debug line missing after SetLevel(debug)")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"debug", "debug", false},
		{"WARNING", "warn", false},
		{"error", "error", false},
		{"", "info", false},
		{"bogus", "", true},
	}
	defer SetLevel("info")

	for _, tt := range tests {
		err := SetLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && GetLevel() != tt.want {
			t.Errorf("SetLevel(%q) -> %q, want %q", tt.in, GetLevel(), tt.want)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New accepted an unknown level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New accepted an unknown format")
	}
	SetLevel("info")
}

func TestRedaction(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"access key masked", "key", "ABCD-1234-EFGH", "ABCD***"},
		{"short key masked", "key_id", "AB", "***"},
		{"secret redacted", "client_secret", "hunter2", redactedValue},
		{"token redacted", "bot_token", "xyz", redactedValue},
		{"plain value kept", "recipient", "42", "42"},
		{"empty kept", "key", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(t, "info")
			l.Info("msg", tt.key, tt.value)
			entry := decode(t, buf)
			if got := entry[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestRedaction_Groups(t *testing.T) {
	l, buf := newBufferLogger(t, "info")
	l.Slog().WithGroup("req").Info("msg", "key", "KEY-0001")
	entry := decode(t, buf)
	req, ok := entry["req"].(map[string]any)
	if !ok {
		t.Fatalf("missing group: %v", entry)
	}
	if req["key"] != "KEY-***" {
		t.Errorf("grouped key = %v", req["key"])
	}
}

func TestContextIDs(t *testing.T) {
	l, buf := newBufferLogger(t, "info")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithInvocationID(ctx, "inv-9")

	if RequestIDFromContext(ctx) != "req-1" {
		t.Error("request id lost")
	}
	if InvocationIDFromContext(ctx) != "inv-9" {
		t.Error("invocation id lost")
	}

	l.Slog().With("component", "desk").InfoContext(ctx, "handled")
	entry := decode(t, buf)
	if entry["request_id"] != "req-1" || entry["invocation_id"] != "inv-9" {
		t.Errorf("ids missing from entry: %v", entry)
	}
	if entry["component"] != "desk" {
		t.Errorf("component lost: %v", entry)
	}

	buf.Reset()
	l.Info("plain")
	if entry := decode(t, buf); entry["request_id"] != nil {
		t.Errorf("request_id without context: %v", entry)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	if l.Slog().Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger enabled at error")
	}
}

func TestMaskKeyID(t *testing.T) {
	if got := MaskKeyID("12345"); got != "1234***" {
		t.Errorf("MaskKeyID = %q", got)
	}
	if got := MaskKeyID("1234"); got != "***" {
		t.Errorf("MaskKeyID short = %q", got)
	}
}
