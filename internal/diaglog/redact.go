package diaglog

import "strings"

// sensitiveKeys are payload keys whose values never reach the log file.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"bridge_token":  true,
	"auth":          true,
}

// Redact returns a copy of v with the values of sensitive keys replaced by
// "[REDACTED]". Only maps and slices are traversed.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = "[REDACTED]"
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				s = "[REDACTED]"
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
