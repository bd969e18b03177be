// Package metric provides Prometheus metrics for KeyDesk.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keydesk"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Key pool metrics
	KeysIssued      *prometheus.CounterVec // method
	IssueFailures   *prometheus.CounterVec // reason
	Compensations   prometheus.Counter
	KeysRedeemed    prometheus.Counter
	StaleCandidates prometheus.Counter
	PoolAvailable   prometheus.Gauge

	// Ticket metrics
	TicketsOpened    *prometheus.CounterVec // type
	TicketClaims     *prometheus.CounterVec // result
	AutoCloseOutcome *prometheus.CounterVec // outcome
	AutoCloseArmed   prometheus.Gauge

	// Command dedup
	DedupDecisions *prometheus.CounterVec // decision

	// Store metrics
	StoreOps    *prometheus.HistogramVec // op
	StoreErrors *prometheus.CounterVec   // op

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec   // method, path, status
	RequestDuration *prometheus.HistogramVec // method, path
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns an HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with all KeyDesk metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,

		KeysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keys", Name: "issued_total",
			Help: "Keys issued, by method",
		}, []string{"method"}),
		IssueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keys", Name: "issue_failures_total",
			Help: "Issuance attempts that did not hand out a key, by reason",
		}, []string{"reason"}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keys", Name: "compensations_total",
			Help: "Issuances rolled back after a delivery failure",
		}),
		KeysRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keys", Name: "redeemed_total",
			Help: "Keys transitioned to used",
		}),
		StaleCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keys", Name: "stale_candidates_total",
			Help: "Popped pool members discarded because their record was not valid",
		}),
		PoolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "keys", Name: "pool_available",
			Help: "Last observed size of the issuable pool",
		}),

		TicketsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tickets", Name: "opened_total",
			Help: "Tickets opened, by type",
		}, []string{"type"}),
		TicketClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tickets", Name: "claims_total",
			Help: "Ticket claim attempts, by result",
		}, []string{"result"}),
		AutoCloseOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tickets", Name: "autoclose_total",
			Help: "Auto-close timer outcomes",
		}, []string{"outcome"}),
		AutoCloseArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tickets", Name: "autoclose_armed",
			Help: "Auto-close timers currently armed",
		}),

		DedupDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "commands", Name: "dedup_total",
			Help: "Command dedup decisions",
		}, []string{"decision"}),

		StoreOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "op_duration_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "errors_total",
			Help: "Store operations that failed in transport",
		}, []string{"op"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		r.KeysIssued, r.IssueFailures, r.Compensations, r.KeysRedeemed,
		r.StaleCandidates, r.PoolAvailable,
		r.TicketsOpened, r.TicketClaims, r.AutoCloseOutcome, r.AutoCloseArmed,
		r.DedupDecisions,
		r.StoreOps, r.StoreErrors,
		r.RequestsTotal, r.RequestDuration,
	)

	return r
}

// Prometheus exposes the underlying registry so engines can register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
