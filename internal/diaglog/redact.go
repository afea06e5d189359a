package diaglog

import "strings"

// redactedValue replaces sensitive payload values.
const redactedValue = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against payload map keys.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"auth":          true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"bearer":        true,
	"password":      true,
	"secret":        true,
	"cookie":        true,
}

// Redact recursively traverses v and replaces the values of sensitive keys
// with "[REDACTED]". v is not mutated; maps and slices are copied.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = redactedValue
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				s = redactedValue
			}
			out[k] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}
