// Package topics maps logical bus addresses to MQTT topic strings and back.
//
// The wire grammar is <prefix>/<node_identity>/<direction>/<name>, where the
// prefix itself may contain slashes (regional roots like "meshcore/BOS" are
// common) and node_identity is either a concrete hex public key or the "+"
// wildcard, which is only valid when building subscription filters.
package topics

import (
	"errors"
	"fmt"
	"strings"
)

// Direction distinguishes gateway-originated events from hub-originated commands.
type Direction string

const (
	DirectionEvent   Direction = "event"
	DirectionCommand Direction = "command"
)

// Wildcard is the MQTT single-level wildcard, used as the identity segment
// when subscribing to all senders.
const Wildcard = "+"

// ErrMalformedTopic is returned when a topic string does not match the
// expected grammar. Callers log and drop the message; a bad topic must never
// take down the ingestion loop.
var ErrMalformedTopic = errors.New("malformed topic")

// Route is the logical address carried by a bus topic.
type Route struct {
	Prefix    string
	Identity  string
	Direction Direction
	Name      string
}

// Format renders the route as a bus topic string.
func (r Route) Format() string {
	return r.Prefix + "/" + r.Identity + "/" + string(r.Direction) + "/" + r.Name
}

// Parse extracts a Route from a topic string under the given prefix.
func Parse(prefix, topic string) (Route, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return Route{}, fmt.Errorf("%w: %q does not start with prefix %q", ErrMalformedTopic, topic, prefix)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return Route{}, fmt.Errorf("%w: %q has %d segments after prefix, want 3", ErrMalformedTopic, topic, len(parts))
	}

	identity, direction, name := parts[0], parts[1], parts[2]
	if identity == "" || name == "" {
		return Route{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedTopic, topic)
	}

	switch Direction(direction) {
	case DirectionEvent, DirectionCommand:
	default:
		return Route{}, fmt.Errorf("%w: %q has invalid direction %q", ErrMalformedTopic, topic, direction)
	}

	return Route{
		Prefix:    prefix,
		Identity:  identity,
		Direction: Direction(direction),
		Name:      name,
	}, nil
}

// EventFilter returns the subscription filter matching every event from every
// gateway under the prefix.
func EventFilter(prefix string) string {
	return prefix + "/+/" + string(DirectionEvent) + "/#"
}

// CommandFilter returns the subscription filter a transmitting gateway uses to
// receive a command regardless of which sender identity published it.
func CommandFilter(prefix, name string) string {
	return Route{Prefix: prefix, Identity: Wildcard, Direction: DirectionCommand, Name: name}.Format()
}
