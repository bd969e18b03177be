// Package httpserver provides the HTTP/HTTPS server for KeyDesk.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/keydesk/internal/server/httpserver/handler"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Keys redeems keys for /v1/keys/redeem.
	Keys handler.Redeemer

	// Store is pinged by /ready.
	Store handler.Pinger

	// Metrics receives HTTP counters and serves /metrics. Nil uses the
	// process-wide registry.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// Limiter throttles redemptions per client IP. Nil disables limiting.
	Limiter *RateLimiter

	// TrustedProxies are the peers allowed to set the client address via
	// forwarding headers. Nil trusts nobody.
	TrustedProxies *handler.ProxyTrust

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metric.Global()
	}

	h := handler.New(cfg.Keys, cfg.Store, log)

	mux := http.NewServeMux()

	// Probes skip access logging to keep the log quiet.
	probe := func(route string) http.Handler {
		return Chain(h, Recover(log), RequestID(), Metrics(reg, route))
	}
	mux.Handle("GET /health", probe("/health"))
	mux.Handle("GET /ready", probe("/ready"))

	mux.Handle("GET /metrics", reg.Handler())

	redeem := []Middleware{
		Recover(log),
		CORS(cfg.CORSAllowedOrigins),
		ClientAddress(cfg.TrustedProxies),
		RequestID(),
		Metrics(reg, "/v1/keys/redeem"),
		AccessLog(log),
	}
	if cfg.Limiter != nil {
		redeem = append(redeem, RateLimit(cfg.Limiter))
	}
	redeemHandler := Chain(h, redeem...)
	mux.Handle("GET /v1/keys/redeem", redeemHandler)
	mux.Handle("POST /v1/keys/redeem", redeemHandler)
	mux.Handle("OPTIONS /v1/keys/redeem", redeemHandler)

	return mux
}
