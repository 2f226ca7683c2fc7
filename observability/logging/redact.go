package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// Keys that may be logged verbatim through MaskField. Everything else passed
// to MaskField is treated as a secret (signer keys, passphrases, RPC URLs with
// embedded credentials).
var plainKeys = map[string]struct{}{
	"network":   {},
	"operation": {},
	"address":   {},
	"deployer":  {},
	"feed":      {},
	"sequence":  {},
	"error":     {},
	"reason":    {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField builds an attribute whose value is replaced by RedactedValue
// unless key is allowlisted or the value is blank.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
