// Package config holds the per-user keydesk-cli settings.
//
// The file lives at ~/.keydesk/cli.yaml and only carries defaults for
// global flags: which server configuration to open, the output format and
// the administrator identity recorded on writes. Flags and KEYDESK_*
// environment variables override it.
package config
