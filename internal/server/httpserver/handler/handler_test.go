package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/internal/storage/memory"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, pingErr error) (*Handler, *service.KeyPool) {
	t.Helper()
	store := memory.New()
	courier := service.CourierFunc(func(context.Context, service.Recipient, string) error { return nil })
	pool := service.NewKeyPool(store, courier, service.DefaultKeyPoolConfig(), discardLogger(), nil)
	return New(pool, stubPinger{err: pingErr}, discardLogger()), pool
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decode(t, rec); resp.Code != "OK" {
		t.Errorf("expected code OK, got %s", resp.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		status  int
		code    string
	}{
		{"store reachable", nil, http.StatusOK, "OK"},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.pingErr)

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if resp := decode(t, rec); resp.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestRedeem(t *testing.T) {
	h, pool := newTestHandler(t, nil)
	ctx := context.Background()
	for _, k := range []string{"ALPHA-0001", "BRAVO-0002", "CHARLIE-0003"} {
		if err := pool.Add(ctx, k); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"query parameter", http.MethodGet, "/v1/keys/redeem?key=ALPHA-0001", "", http.StatusOK, "OK"},
		{"second redemption", http.MethodGet, "/v1/keys/redeem?key=ALPHA-0001", "", http.StatusForbidden, domain.ErrKeyAlreadyUsed.Code},
		{"post body", http.MethodPost, "/v1/keys/redeem", `{"key":"BRAVO-0002"}`, http.StatusOK, "OK"},
		{"post query", http.MethodPost, "/v1/keys/redeem?key=CHARLIE-0003", "", http.StatusOK, "OK"},
		{"surrounding whitespace", http.MethodGet, "/v1/keys/redeem?key=%20BRAVO-0002%20", "", http.StatusForbidden, domain.ErrKeyAlreadyUsed.Code},
		{"unknown key", http.MethodGet, "/v1/keys/redeem?key=NOPE-9999", "", http.StatusNotFound, domain.ErrKeyNotFound.Code},
		{"missing key", http.MethodGet, "/v1/keys/redeem", "", http.StatusBadRequest, domain.ErrMissingArgument.Code},
		{"malformed body", http.MethodPost, "/v1/keys/redeem", `{"key":`, http.StatusBadRequest, domain.ErrInvalidArgument.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d (body %s)", tt.status, rec.Code, rec.Body.String())
			}
			if resp := decode(t, rec); resp.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestRedeem_RecordsUsage(t *testing.T) {
	h, pool := newTestHandler(t, nil)
	ctx := context.Background()
	if err := pool.Add(ctx, "DELTA-0004"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/keys/redeem?key=DELTA-0004", nil)
	req = req.WithContext(WithClientIP(req.Context(), "203.0.113.7"))
	req.Header.Set("User-Agent", "launcher/2.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "DELTA-0004") {
		t.Error("response must not echo the full key")
	}

	st, err := pool.Inspect(ctx, "DELTA-0004")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if st.Classification != domain.ClassUsed {
		t.Fatalf("expected used, got %s", st.Classification)
	}
	if st.Usage == nil {
		t.Fatal("expected usage record")
	}
	if st.Usage.OriginAddr != "203.0.113.7" {
		t.Errorf("expected origin 203.0.113.7, got %q", st.Usage.OriginAddr)
	}
	if st.Usage.ClientDescriptor != "launcher/2.1" {
		t.Errorf("expected client descriptor launcher/2.1, got %q", st.Usage.ClientDescriptor)
	}
}

func TestRedeem_RecipientID(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   string
	}{
		{"anonymous get", http.MethodGet, "/v1/keys/redeem?key=ECHO-0005", "", ""},
		{"query recipient", http.MethodGet, "/v1/keys/redeem?key=ECHO-0005&recipient_id=player-9", "", "player-9"},
		{"body recipient", http.MethodPost, "/v1/keys/redeem", `{"key":"ECHO-0005","recipient_id":"player-7"}`, "player-7"},
		{"anonymous body", http.MethodPost, "/v1/keys/redeem", `{"key":"ECHO-0005"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, pool := newTestHandler(t, nil)
			ctx := context.Background()
			if err := pool.Add(ctx, "ECHO-0005"); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if _, err := pool.IssueRandom(ctx, service.Recipient{ID: "owner-1"}); err != nil {
				t.Fatalf("IssueRandom: %v", err)
			}

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			st, err := pool.Inspect(ctx, "ECHO-0005")
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if st.Usage == nil || st.Usage.RecipientID != tt.want {
				t.Errorf("usage = %+v, want recipient %q", st.Usage, tt.want)
			}
		})
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{domain.ErrKeyNotFound.Code, http.StatusNotFound},
		{domain.ErrNotAvailable.Code, http.StatusNotFound},
		{domain.ErrTicketNotFound.Code, http.StatusNotFound},
		{domain.ErrKeyAlreadyUsed.Code, http.StatusForbidden},
		{domain.ErrAlreadyClaimed.Code, http.StatusConflict},
		{domain.ErrKeyConflict.Code, http.StatusConflict},
		{domain.ErrUnauthorized.Code, http.StatusForbidden},
		{domain.ErrDuplicateInvocation.Code, http.StatusTooManyRequests},
		{domain.ErrInvalidArgument.Code, http.StatusBadRequest},
		{domain.ErrMissingArgument.Code, http.StatusBadRequest},
		{domain.ErrTicketValidation.Code, http.StatusBadRequest},
		{domain.ErrStoreUnavailable.Code, http.StatusServiceUnavailable},
		{domain.ErrDeliveryFailure.Code, http.StatusInternalServerError},
		{domain.ErrInternal.Code, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorCodeToHTTPStatus(tt.code); got != tt.status {
				t.Errorf("errorCodeToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.status)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		resolved   string
		want       string
	}{
		{"remote addr", "192.0.2.1:4711", nil, "", "192.0.2.1"},
		{"ipv6 remote addr", "[::1]:4711", nil, "", "::1"},
		{"headers ignored", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "198.51.100.9", "X-Real-IP": "198.51.100.10"}, "", "10.0.0.1"},
		{"resolved in context", "10.0.0.1:80", nil, "198.51.100.9", "198.51.100.9"},
		{"unparseable remote addr", "pipe", nil, "", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.resolved != "" {
				req = req.WithContext(WithClientIP(req.Context(), tt.resolved))
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyTrust_Resolve(t *testing.T) {
	trust, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.50"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}

	tests := []struct {
		name       string
		trust      *ProxyTrust
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted peer ignores xff", trust, "198.51.100.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "198.51.100.1"},
		{"untrusted peer ignores real ip", trust, "198.51.100.1:1", map[string]string{"X-Real-IP": "203.0.113.5"}, "198.51.100.1"},
		{"nil trust ignores xff", nil, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.1"},
		{"trusted peer uses xff", trust, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"rightmost untrusted hop", trust, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.5, 10.0.0.7"}, "203.0.113.5"},
		{"single address trusted", trust, "192.0.2.50:1", map[string]string{"X-Forwarded-For": "203.0.113.8"}, "203.0.113.8"},
		{"all hops trusted", trust, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.2, 10.0.0.3"}, "10.0.0.2"},
		{"garbage hop stops walk", trust, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, bogus, 10.0.0.3"}, "10.0.0.3"},
		{"trusted peer uses real ip", trust, "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"bad real ip", trust, "10.0.0.1:1", map[string]string{"X-Real-IP": "nope"}, "10.0.0.1"},
		{"mapped ipv4 peer", trust, "[::ffff:10.0.0.1]:1", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := tt.trust.Resolve(req); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	tests := []struct {
		entries []string
		wantErr bool
	}{
		{nil, false},
		{[]string{"10.0.0.0/8", "::1", " 192.0.2.1 ", ""}, false},
		{[]string{"10.0.0.0/33"}, true},
		{[]string{"proxy.internal"}, true},
	}

	for _, tt := range tests {
		_, err := ParseTrustedProxies(tt.entries)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTrustedProxies(%v) error = %v, wantErr %v", tt.entries, err, tt.wantErr)
		}
	}
}
