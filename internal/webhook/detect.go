package webhook

import "sort"

// Source identifies which collaborator a webhook body came from.
type Source string

const (
	SourceDuitku    Source = "duitku"
	SourceThinkific Source = "thinkific"
	SourceUnknown   Source = "unknown"
)

// DetectSource fingerprints the decoded body. A payment notification carries
// an order id and a result code; a platform event carries resource, action
// and payload. Anything else is unknown and must not be guessed at: routing
// to the wrong handler would apply the wrong signature scheme.
func DetectSource(body map[string]any) Source {
	if hasKey(body, "merchantOrderId") && hasKey(body, "resultCode") {
		return SourceDuitku
	}
	if hasKey(body, "resource") && hasKey(body, "action") && hasKey(body, "payload") {
		return SourceThinkific
	}
	return SourceUnknown
}

// FieldNames returns the body's top-level keys, sorted, for the unknown-source
// error response.
func FieldNames(body map[string]any) []string {
	names := make([]string, 0, len(body))
	for k := range body {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func hasKey(body map[string]any, key string) bool {
	_, ok := body[key]
	return ok
}
