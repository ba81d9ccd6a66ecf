package models

import "time"

// Message classes.
const (
	MessageClassContact = "contact"
	MessageClassChannel = "channel"
)

// TxtTypeSigned marks channel messages carrying a sender signature; only
// these can be safely correlated across gateways.
const TxtTypeSigned = 2

// ChannelIdxDefault is the firmware catch-all channel index. A merge sighting
// carrying a more specific index replaces it.
const ChannelIdxDefault = 0

// Message is one logical contact or channel text transmission. A single
// broadcast is commonly overheard by several gateways; those sightings
// collapse into one Message with multiple receivers.
type Message struct {
	ID              int64      `db:"id"`
	MessageClass    string     `db:"message_class"`
	PubKeyPrefix    *string    `db:"pubkey_prefix"`
	ChannelIdx      *int       `db:"channel_idx"`
	ChannelName     *string    `db:"channel_name"`
	Text            string     `db:"text"`
	TxtType         *int       `db:"txt_type"`
	Signature       *string    `db:"signature"`
	SNR             *float64   `db:"snr"`
	SenderTimestamp *time.Time `db:"sender_timestamp"`
	PathLen         *int       `db:"path_len"`
	ReceivedAt      time.Time  `db:"received_at"`
	EventHash       *string    `db:"event_hash"`
}

// MessageReceiver is one (gateway, SNR, time) observation of a Message.
type MessageReceiver struct {
	MessageID         int64     `db:"message_id"`
	ReceiverPublicKey string    `db:"receiver_public_key"`
	ReceiverName      *string   `db:"receiver_name"`
	SNR               *float64  `db:"snr"`
	ReceivedAt        time.Time `db:"received_at"`
}

// Advertisement is one raw advertisement sighting, retained for history
// independent of the Node snapshot.
type Advertisement struct {
	ID         int64     `db:"id"`
	PublicKey  string    `db:"public_key"`
	Name       *string   `db:"name"`
	AdvType    *string   `db:"adv_type"`
	Flags      *int64    `db:"flags"`
	ReceivedBy *string   `db:"received_by"`
	ReceivedAt time.Time `db:"received_at"`
	EventHash  *string   `db:"event_hash"`
}

// TracePath is one immutable trace result.
type TracePath struct {
	ID           int64     `db:"id"`
	ReceiverKey  *string   `db:"receiver_public_key"`
	InitiatorTag int64     `db:"initiator_tag"`
	PathLen      *int      `db:"path_len"`
	Flags        *int64    `db:"flags"`
	Auth         *int64    `db:"auth"`
	PathHashes   *string   `db:"path_hashes"`
	SNRValues    *string   `db:"snr_values"`
	HopCount     *int      `db:"hop_count"`
	ReceivedAt   time.Time `db:"received_at"`
	EventHash    *string   `db:"event_hash"`
}

// Telemetry is one sensor report: the raw LPP payload plus whatever the
// gateway already decoded.
type Telemetry struct {
	ID            int64     `db:"id"`
	NodePublicKey string    `db:"node_public_key"`
	LPPData       *string   `db:"lpp_data"`
	ParsedData    *string   `db:"parsed_data"`
	ReceivedAt    time.Time `db:"received_at"`
	EventHash     *string   `db:"event_hash"`
}

// EventLogEntry is the append-only audit record of a raw envelope.
type EventLogEntry struct {
	ID         int64     `db:"id"`
	PublicKey  string    `db:"public_key"`
	EventType  string    `db:"event_type"`
	Payload    string    `db:"payload"`
	Note       *string   `db:"note"`
	ReceivedAt time.Time `db:"received_at"`
}
