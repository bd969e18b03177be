// Package main provides the entry point for keydesk-server.
//
// The server hosts the KeyDesk command desk over the configured store:
//
//   - HTTP redemption endpoint for end users
//   - Prometheus metrics and health probes
//   - Auto-close timers for ticket channels
//   - Key delivery and channel management through the frontend bridge
//
// Usage:
//
//	keydesk-server [flags]
//	keydesk-server --config /etc/keydesk/server.yaml
//
// Sending SIGINT or SIGTERM stops the listeners, cancels pending
// auto-close timers and closes the store.
package main
