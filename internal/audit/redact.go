package audit

import "strings"

// sensitiveKeySubstrings are matched case-insensitively against detail map
// keys; any matching value is replaced before the entry ever reaches a
// sink, since audit logs are themselves long-lived and widely readable.
var sensitiveKeySubstrings = []string{
	"original_id",
	"original_sample",
	"sample_id_raw",
	"password",
	"secret",
	"encryption_key",
	"api_key",
	"patient",
	"ssn",
	"dob",
	"mrn",
	"name",
	"address",
	"phone",
	"email",
	"birth",
	"subject",
}

const redactedPlaceholder = "[REDACTED]"

// Redact walks details recursively and blanks out values whose key
// matches a sensitive substring, returning a new map so the caller's
// original details are never mutated.
func Redact(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	return redactMap(details)
}

func redactMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return redactMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
