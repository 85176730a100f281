package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSource(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		expected Source
	}{
		{
			name: "DuitkuCallback",
			body: map[string]any{
				"merchantCode":    "DM1234",
				"merchantOrderId": "COURSE_123_ABC",
				"amount":          "100000",
				"resultCode":      "00",
				"signature":       "abc",
			},
			expected: SourceDuitku,
		},
		{
			name: "ThinkificEvent",
			body: map[string]any{
				"resource": "enrollment",
				"action":   "created",
				"payload":  map[string]any{"id": float64(42)},
			},
			expected: SourceThinkific,
		},
		{
			name: "DuitkuWithoutResultCode",
			body: map[string]any{
				"merchantOrderId": "COURSE_123_ABC",
				"amount":          "100000",
			},
			expected: SourceUnknown,
		},
		{
			name: "ThinkificWithoutPayload",
			body: map[string]any{
				"resource": "enrollment",
				"action":   "created",
			},
			expected: SourceUnknown,
		},
		{
			name:     "EmptyBody",
			body:     map[string]any{},
			expected: SourceUnknown,
		},
		{
			name: "UnrelatedFields",
			body: map[string]any{
				"event": "ping",
				"ts":    float64(1700000000),
			},
			expected: SourceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectSource(tt.body))
		})
	}
}

func TestFieldNames(t *testing.T) {
	body := map[string]any{"zeta": 1, "alpha": 2, "mid": 3}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, FieldNames(body))
}
