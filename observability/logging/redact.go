package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// ledgerKeys may be logged verbatim by MaskField.
var ledgerKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"operation": {},
	"account":   {},
	"caller":    {},
	"amount":    {},
	"listen":    {},
	"driver":    {},
}

// sensitiveMarkers flag attribute keys the handler masks on every line, even
// when the caller forgot MaskField.
var sensitiveMarkers = []string{"secret", "password", "passphrase", "token", "dsn", "authorization"}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsSensitive reports whether key names a credential.
func IsSensitive(key string) bool {
	normalized := normalizeKey(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskValue redacts non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField keeps value only for known ledger keys.
func MaskField(key, value string) slog.Attr {
	if _, ok := ledgerKeys[normalizeKey(key)]; ok || strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindString && IsSensitive(attr.Key) {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return attr
}
