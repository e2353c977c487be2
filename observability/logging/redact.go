package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of any attribute whose key looks like a
// credential.
const RedactedValue = "[REDACTED]"

// sensitiveFragments are matched against lower-cased attribute keys.
var sensitiveFragments = []string{
	"authorization",
	"secret",
	"token",
	"password",
	"dsn",
}

// tokenKeys name farm attributes that contain "token" but carry a symbol.
var tokenKeys = map[string]struct{}{
	"token":        {},
	"stake_token":  {},
	"reward_token": {},
}

// Sensitive reports whether values logged under key are masked.
func Sensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := tokenKeys[normalized]; ok {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// redactAttr is installed as the handler ReplaceAttr hook. Empty values pass
// through so missing credentials remain visible in logs.
func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !Sensitive(attr.Key) {
		return attr
	}
	if strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
