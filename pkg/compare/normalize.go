package compare

import "strings"

// maxDepth caps recursion when scrubbing nested response documents.
const maxDepth = 10

// ignoredFieldFragments lists lowercase name fragments of fields that carry no
// business meaning across environments: timestamps, environment metadata,
// per-request identifiers, and transport bookkeeping. Any field whose
// lowercased name contains one of these fragments is stripped before
// comparison, at every nesting level.
var ignoredFieldFragments = []string{
	// timestamps
	"created_at",
	"updated_at",
	"timestamp",
	"datetime",
	"issued_at",
	"applied_at",
	"checkout_date",
	"payment_date",
	"application_date",
	"generated_at",

	// environment metadata
	"environment",
	"hostname",
	"region",
	"zone",
	"instance_id",
	"deployment_id",

	// per-request identifiers
	"request_id",
	"transaction_id",
	"correlation_id",
	"trace_id",
	"uuid",
	"session_id",
	"execution_id",

	// transport bookkeeping
	"status_code",
	"response_time",
	"latency",
	"processing_time",
}

func isIgnoredField(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range ignoredFieldFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Normalize returns a copy of the response with non-comparable fields removed
// at every nesting level. The input is never modified.
func Normalize(response map[string]interface{}) map[string]interface{} {
	if response == nil {
		return nil
	}
	return normalizeMap(response, 0)
}

func normalizeMap(m map[string]interface{}, depth int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		if isIgnoredField(key) {
			continue
		}
		out[key] = normalizeValue(value, depth)
	}
	return out
}

func normalizeValue(v interface{}, depth int) interface{} {
	if depth >= maxDepth {
		return v
	}
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeMap(val, depth+1)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item, depth+1)
		}
		return out
	default:
		return v
	}
}
