package models

import "strings"

// WebhookSubscription is an outbound HTTP subscription. Subscriptions are
// managed externally; the collector only reads them.
type WebhookSubscription struct {
	ID         int64   `db:"id"`
	URL        string  `db:"url"`
	EventTypes string  `db:"event_types"` // comma-separated canonical names
	PathFilter *string `db:"path_filter"`
	Enabled    bool    `db:"enabled"`
}

// Events returns the subscribed event names, trimmed and upper-cased.
func (s *WebhookSubscription) Events() []string {
	var out []string
	for _, e := range strings.Split(s.EventTypes, ",") {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether the subscription wants the given event type.
func (s *WebhookSubscription) Matches(eventType string) bool {
	for _, e := range s.Events() {
		if e == eventType {
			return true
		}
	}
	return false
}
