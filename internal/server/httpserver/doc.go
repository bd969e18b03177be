// Package httpserver provides the HTTP/HTTPS server for KeyDesk.
//
// The HTTP surface is deliberately small: liveness and readiness probes,
// Prometheus metrics, and the public key redemption endpoint. Everything
// an administrator does goes through the chat command surface instead.
//
// Middleware order for redemption is Recover, CORS, RequestID, Metrics,
// AccessLog, then the per-IP RateLimit.
package httpserver
