// Package webhook delivers persisted events to subscribed HTTP endpoints
// with per-subscription payload filtering, bounded concurrency, and retry
// with backoff. Delivery is fully decoupled from ingestion.
package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Envelope is the canonical wrapper around every dispatched event payload.
type Envelope struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEnvelope builds the canonical envelope for an event.
func NewEnvelope(eventType string, payload map[string]any, at time.Time) Envelope {
	return Envelope{
		EventType: eventType,
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      payload,
	}
}

// ApplyFilter evaluates a path-filter expression against the envelope and
// returns the outbound body. The grammar is a small fixed set:
//
//	$                    whole envelope
//	$.data               payload only
//	$.data.<field>       single field
//	$.data.[f1,f2,...]   named fields as an ordered array
//	$.event_type         event name
//	$.timestamp          receive timestamp
//
// Unknown paths resolve to JSON null rather than erroring, so a stale
// filter degrades to an empty delivery instead of losing the event.
func ApplyFilter(filter string, env Envelope) ([]byte, error) {
	doc, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	filter = strings.TrimSpace(filter)
	if filter == "" || filter == "$" {
		return doc, nil
	}

	path, ok := strings.CutPrefix(filter, "$.")
	if !ok {
		return []byte("null"), nil
	}

	// $.data.[f1,f2] selects named fields as an ordered array; gjson's
	// multipath form gives exactly that.
	if strings.HasSuffix(path, "]") {
		if base, list, found := strings.Cut(path, ".["); found {
			fields := strings.TrimSuffix(list, "]")
			var parts []string
			for _, f := range strings.Split(fields, ",") {
				parts = append(parts, base+"."+strings.TrimSpace(f))
			}
			path = "[" + strings.Join(parts, ",") + "]"
		}
	}

	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return []byte("null"), nil
	}
	return []byte(result.Raw), nil
}
