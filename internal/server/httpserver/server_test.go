package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/core/service"
	"github.com/yndnr/keydesk/internal/server/httpserver/handler"
	"github.com/yndnr/keydesk/internal/storage/memory"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

func TestNew(t *testing.T) {
	s := New(":8080", okHandler())
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.httpServer == nil {
		t.Error("httpServer is nil")
	}
	if s.httpServer.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout should be set")
	}
}

func TestServer_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(ln.Addr().String(), okHandler())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}

type routerFixture struct {
	srv  *httptest.Server
	pool *service.KeyPool
	reg  *metric.Registry
}

func newRouterFixture(t *testing.T, limiter *RateLimiter) *routerFixture {
	t.Helper()
	store := memory.New()
	reg := metric.NewRegistry()
	courier := service.CourierFunc(func(context.Context, service.Recipient, string) error { return nil })
	pool := service.NewKeyPool(store, courier, service.DefaultKeyPoolConfig(), discardLogger(), reg)

	srv := httptest.NewServer(NewRouter(&RouterConfig{
		Keys:    pool,
		Store:   store,
		Metrics: reg,
		Logger:  discardLogger(),
		Limiter: limiter,
	}))
	t.Cleanup(srv.Close)
	return &routerFixture{srv: srv, pool: pool, reg: reg}
}

func (f *routerFixture) get(t *testing.T, path string) (*http.Response, handler.Response) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var body handler.Response
	data, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp, body
}

func TestRouter_RedeemFlow(t *testing.T) {
	f := newRouterFixture(t, nil)
	if err := f.pool.Add(context.Background(), "ECHO-0005"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	resp, body := f.get(t, "/v1/keys/redeem?key=ECHO-0005")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first redemption: expected 200, got %d", resp.StatusCode)
	}
	if body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-ID") {
		t.Errorf("envelope request ID %q does not match header %q", body.RequestID, resp.Header.Get("X-Request-ID"))
	}

	resp, body = f.get(t, "/v1/keys/redeem?key=ECHO-0005")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("second redemption: expected 403, got %d", resp.StatusCode)
	}
	if body.Code != domain.ErrKeyAlreadyUsed.Code {
		t.Errorf("expected %s, got %s", domain.ErrKeyAlreadyUsed.Code, body.Code)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected open CORS on the redemption endpoint")
	}
}

func TestRouter_Preflight(t *testing.T) {
	f := newRouterFixture(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/v1/keys/redeem", nil)
	req.Header.Set("Origin", "https://launcher.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	f := newRouterFixture(t, NewRateLimiter(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := f.get(t, "/v1/keys/redeem?key=UNKNOWN")
		codes = append(codes, resp.StatusCode)
	}

	want := []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}

	// Probes are never throttled.
	if resp, _ := f.get(t, "/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_RateLimitForwardedFor(t *testing.T) {
	f := newRouterFixture(t, NewRateLimiter(0.001, 2))

	var last int
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/v1/keys/redeem?key=UNKNOWN", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i+1))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the peer's bucket drains, got %d", last)
	}
}

func TestRouter_Probes(t *testing.T) {
	f := newRouterFixture(t, nil)

	for _, path := range []string{"/health", "/ready"} {
		resp, body := f.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if body.Code != "OK" {
			t.Errorf("%s: expected code OK, got %s", path, body.Code)
		}
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, nil)
	if err := f.pool.Add(context.Background(), "FOXTROT-0006"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	f.get(t, "/v1/keys/redeem?key=FOXTROT-0006")

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`keydesk_http_requests_total{method="GET",path="/v1/keys/redeem",status="200"} 1`,
		"keydesk_keys_redeemed_total",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newRouterFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

