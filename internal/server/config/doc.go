// Package config provides server configuration for KeyDesk.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (engine choice, addresses, timings)
//   - sanitize.go: Log sanitization (hide the store password)
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and KEYDESK_ environment variables.
package config
