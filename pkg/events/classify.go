// Package events classifies raw gateway events and validates their payloads
// against the published contract. The classification table is closed over the
// known event types; anything else is treated as informational so future
// firmware events flow through the audit log without code changes.
package events

import "strings"

// Type is a canonical (upper-case) event name.
type Type string

const (
	TypeAdvertisement     Type = "ADVERTISEMENT"
	TypeContactMsgRecv    Type = "CONTACT_MSG_RECV"
	TypeChannelMsgRecv    Type = "CHANNEL_MSG_RECV"
	TypeTraceData         Type = "TRACE_DATA"
	TypeTelemetryResponse Type = "TELEMETRY_RESPONSE"
	TypeContacts          Type = "CONTACTS"

	TypeSendConfirmed    Type = "SEND_CONFIRMED"
	TypeMsgSent          Type = "MSG_SENT"
	TypeStatusResponse   Type = "STATUS_RESPONSE"
	TypeBattery          Type = "BATTERY"
	TypePathUpdated      Type = "PATH_UPDATED"
	TypeTxHeartbeat      Type = "TX_HEARTBEAT"
	TypeContactsStart    Type = "CONTACTS_START"
	TypeContactsProgress Type = "CONTACTS_PROGRESS"
	TypeContactsEnd      Type = "CONTACTS_END"
	TypeRxLogData        Type = "RX_LOG_DATA"
)

// Class determines how an event is handled after classification.
type Class int

const (
	// PersistAndDispatch events get typed persistence and webhook delivery.
	PersistAndDispatch Class = iota
	// PersistOnly events get typed persistence but no webhook delivery.
	PersistOnly
	// InfoOnly events only reach the audit log.
	InfoOnly
)

func (c Class) String() string {
	switch c {
	case PersistAndDispatch:
		return "persist_and_dispatch"
	case PersistOnly:
		return "persist_only"
	default:
		return "info_only"
	}
}

var classTable = map[Type]Class{
	TypeAdvertisement:     PersistAndDispatch,
	TypeContactMsgRecv:    PersistAndDispatch,
	TypeChannelMsgRecv:    PersistAndDispatch,
	TypeTraceData:         PersistAndDispatch,
	TypeTelemetryResponse: PersistAndDispatch,
	TypeContacts:          PersistOnly,
}

// DefaultExcludedTypes are high-frequency informational events dropped before
// the audit log to bound its growth. Contact enumeration fires once per known
// contact on every gateway sync.
var DefaultExcludedTypes = []Type{
	TypeContactsStart,
	TypeContactsProgress,
	TypeContactsEnd,
	TypeRxLogData,
	TypeTxHeartbeat,
}

// Classifier resolves event names to handling classes.
type Classifier struct {
	excluded map[Type]struct{}
}

// NewClassifier builds a classifier with the given audit-log exclusion list.
// A nil list means DefaultExcludedTypes.
func NewClassifier(excluded []Type) *Classifier {
	if excluded == nil {
		excluded = DefaultExcludedTypes
	}
	set := make(map[Type]struct{}, len(excluded))
	for _, t := range excluded {
		set[t] = struct{}{}
	}
	return &Classifier{excluded: set}
}

// Canonical folds a wire event name (topics carry lower-case names) to the
// canonical form.
func Canonical(name string) Type {
	return Type(strings.ToUpper(strings.TrimSpace(name)))
}

// Classify resolves an event name to its canonical type and handling class.
// Unknown names classify as InfoOnly.
func (c *Classifier) Classify(name string) (Type, Class) {
	t := Canonical(name)
	class, ok := classTable[t]
	if !ok {
		return t, InfoOnly
	}
	return t, class
}

// Excluded reports whether the event type is on the audit-log exclusion list.
func (c *Classifier) Excluded(t Type) bool {
	_, ok := c.excluded[t]
	return ok
}
