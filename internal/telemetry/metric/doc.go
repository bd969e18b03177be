// Package metric provides Prometheus metrics for KeyDesk.
//
// Metrics include:
//
//   - Issuance, compensation and redemption counters
//   - Ticket claim results and auto-close outcomes
//   - Command dedup decisions
//   - Store operation latency and transport errors
//   - HTTP request counts and latency
//
// Components accept a *Registry; a nil registry disables recording.
// Metrics are exposed at /metrics in Prometheus format.
package metric
