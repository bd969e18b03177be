// Package command provides CLI command definitions for keydesk-cli.
//
// It uses urfave/cli/v2 for command parsing. Every command opens the store
// named in the server configuration, runs one Desk operation as an
// administrator invocation and renders the result with the output package.
//
// Command groups:
//
//   - key: add, import, reset, inspect, issue, redeem, available, history,
//     backfill, purge, log, export
//   - recipient: reset
//   - ticket: open, claim, release, close, show
//   - store: ping, backup
//   - version
package command
