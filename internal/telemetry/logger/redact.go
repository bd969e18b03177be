package logger

import (
	"log/slog"
	"strings"
)

// Attribute names whose values are access keys. They are partially masked
// so operators can still correlate log lines.
var keyIDAttrs = map[string]struct{}{
	"key":       {},
	"key_id":    {},
	"candidate": {},
}

// Attribute name fragments whose values are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
	"bearer",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}

		keyLower := strings.ToLower(a.Key)
		if _, ok := keyIDAttrs[keyLower]; ok {
			return slog.String(a.Key, MaskKeyID(strVal))
		}
		if IsSensitiveKey(keyLower) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// MaskKeyID keeps the first four characters of an access key.
func MaskKeyID(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:4] + "***"
}

// IsSensitiveKey checks if an attribute name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
