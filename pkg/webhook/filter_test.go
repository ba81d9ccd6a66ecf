package webhook

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func testEnvelope() Envelope {
	at := time.Date(2025, 11, 28, 19, 41, 38, 0, time.UTC)
	return NewEnvelope("CHANNEL_MSG_RECV", map[string]any{
		"channel_idx": 4,
		"text":        "Hello from the mesh!",
		"SNR":         8.5,
	}, at)
}

func TestApplyFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   any
	}{
		{"single field", "$.data.text", "Hello from the mesh!"},
		{"named fields as ordered array", "$.data.[channel_idx,text]",
			[]any{float64(4), "Hello from the mesh!"}},
		{"event type", "$.event_type", "CHANNEL_MSG_RECV"},
		{"timestamp", "$.timestamp", "2025-11-28T19:41:38Z"},
		{"payload only", "$.data", map[string]any{
			"channel_idx": float64(4),
			"text":        "Hello from the mesh!",
			"SNR":         8.5,
		}},
		{"unknown path resolves to null", "$.data.missing_field", nil},
		{"garbage filter resolves to null", "not a filter", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ApplyFilter(tt.filter, testEnvelope())
			if err != nil {
				t.Fatalf("ApplyFilter() error = %v", err)
			}
			var got any
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("output %q is not valid JSON: %v", body, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplyFilter(%q) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestApplyFilterWholeEnvelope(t *testing.T) {
	for _, filter := range []string{"$", "", "  $  "} {
		body, err := ApplyFilter(filter, testEnvelope())
		if err != nil {
			t.Fatalf("ApplyFilter(%q) error = %v", filter, err)
		}
		var env map[string]any
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if env["event_type"] != "CHANNEL_MSG_RECV" {
			t.Errorf("event_type = %v", env["event_type"])
		}
		if _, ok := env["data"]; !ok {
			t.Error("whole envelope must include data")
		}
	}
}
