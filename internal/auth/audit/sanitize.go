package audit

import "strings"

// Field names stripped from event payloads before emission, matched
// case-insensitively as substrings. The list is deliberately broad: losing a
// harmless field beats leaking a credential.
var sensitiveFields = []string{
	"password",
	"token",
	"secret",
	"code",
	"key",
	"seed",
}

const redacted = "[REDACTED]"

// Sanitize returns a copy of payload with sensitive fields redacted,
// recursively through nested maps and slices. The input is not mutated.
func Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSensitiveField(k) {
			out[k] = redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveField(name string) bool {
	lowered := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowered, field) {
			return true
		}
	}
	return false
}
