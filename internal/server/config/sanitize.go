// Package config defines the server configuration structure.
package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Store.Redis.URL != "" {
		sanitized.Store.Redis.URL = maskURLPassword(sanitized.Store.Redis.URL)
	}

	if sanitized.Frontend.Token != "" {
		sanitized.Frontend.Token = maskSecret(sanitized.Frontend.Token)
	}

	return &sanitized
}

// maskURLPassword masks the password of a redis:// URL.
func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return maskSecret(raw)
	}
	if u.User == nil {
		return raw
	}
	if pw, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), maskSecret(pw))
	}
	return u.String()
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
