// Package handler provides HTTP request handlers for KeyDesk.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/telemetry/logger"
)

// Redeemer marks a key used on behalf of an end user.
type Redeemer interface {
	Redeem(ctx context.Context, keyID string, usage domain.UsageRecord) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	keys   Redeemer
	store  Pinger
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a new Handler.
func New(keys Redeemer, store Pinger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		keys:   keys,
		store:  store,
		logger: log,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /v1/keys/redeem", h.handleRedeem)
	h.mux.HandleFunc("POST /v1/keys/redeem", h.handleRedeem)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// getRequestID returns the ID assigned by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case code == domain.ErrKeyAlreadyUsed.Code:
		return http.StatusForbidden
	case code == domain.ErrStoreUnavailable.Code:
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"), strings.HasSuffix(code, "-4092"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "KD-ARG-"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
