// Package httpserver provides the HTTP/HTTPS server for KeyDesk.
package httpserver

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/server/httpserver/handler"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
	"github.com/yndnr/keydesk/pkg/cmap"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// maxRequestIDLength caps an inbound X-Request-ID before it is echoed.
const maxRequestIDLength = 64

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = newRequestID()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "req-unknown"
	}
	return "req-" + strings.ToLower(id.String())
}

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cmap.Map[*rate.Limiter]
}

// NewRateLimiter creates a per-IP limiter allowing rps requests per second
// with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: cmap.New[*rate.Limiter](),
	}
}

// Allow reports whether ip may make a request now.
func (l *RateLimiter) Allow(ip string) bool {
	var lim *rate.Limiter
	l.buckets.Compute(ip, func(v *rate.Limiter, exists bool) (*rate.Limiter, bool) {
		if !exists {
			v = rate.NewLimiter(l.limit, l.burst)
		}
		lim = v
		return v, true
	})
	return lim.Allow()
}

// Sweep drops buckets that have refilled completely, so idle clients
// do not accumulate.
func (l *RateLimiter) Sweep() int {
	now := time.Now()
	return l.buckets.DeleteIf(func(_ string, v *rate.Limiter) bool {
		return v.TokensAt(now) >= float64(l.burst)
	})
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	return l.buckets.Count()
}

// ClientAddress resolves the client IP once per request so the limiter,
// the access log and the usage record agree on it.
func ClientAddress(trust *handler.ProxyTrust) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := handler.WithClientIP(r.Context(), trust.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit rejects requests over the per-IP budget with 429. Without
// ClientAddress ahead of it the bucket is keyed on the TCP peer.
func RateLimit(l *RateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(handler.ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, "KD-HTTP-4290", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics records request counts and latencies. The route label is the
// registered pattern so unbounded query strings never become labels.
func Metrics(reg *metric.Registry, route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			reg.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
			reg.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// AccessLog writes one log line per request.
func AccessLog(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", handler.ClientIP(r),
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", err,
						"path", r.URL.Path,
					)
					writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS sets cross-origin headers and answers preflight requests.
// An empty allow list or "*" allows any origin.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0
			wildcard := allowed
			for _, o := range allowedOrigins {
				if o == "*" {
					allowed, wildcard = true, true
					break
				}
				if o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if origin != "" {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewErrorResponse(logger.RequestIDFromContext(r.Context()), code, message, nil))
}
