// Package main provides the entry point for keydesk-cli.
//
// The CLI administers a KeyDesk deployment by opening the same store the
// server uses:
//
//   - Key pool management (add, import, reset, inspect, issue, export)
//   - Recipient resets and issuance history
//   - Ticket claim, release and close
//   - Store ping, backup and garbage collection
//
// Usage:
//
//	keydesk-cli [global flags] command [flags] [args]
//	keydesk-cli -c /etc/keydesk/server.yaml key add KEY
//	keydesk-cli -o json key export --since 720h
package main
