package collector

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"

	"github.com/ipnet-mesh/meshcore-hub/pkg/events"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
)

// The build functions turn a validated payload into the write set for one
// event. The receiver key is the gateway identity parsed from the topic; a
// sighting always bumps that gateway's last-seen alongside the typed rows.

func buildAdvertisement(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	publicKey := models.NormalizePublicKey(cast.ToString(payload["public_key"]))
	name := optString(payload, "name")
	advType := optString(payload, "adv_type")
	flags := optInt64(payload, "flags")

	hash := events.AdvertisementHash(publicKey, deref(name), deref(advType), flags, at)

	ws := &store.WriteSet{
		Advertisement: &models.Advertisement{
			PublicKey:  publicKey,
			Name:       name,
			AdvType:    advType,
			Flags:      flags,
			ReceivedBy: optNonEmpty(receiverKey),
			ReceivedAt: at,
			EventHash:  &hash,
		},
	}
	ws.NodeUpserts = append(ws.NodeUpserts, &models.Node{
		PublicKey: publicKey,
		Name:      name,
		AdvType:   advType,
		Flags:     flags,
		FirstSeen: at,
		LastSeen:  &at,
	})
	if receiverKey != "" && receiverKey != publicKey {
		ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(receiverKey, at))
	}
	return ws
}

func buildContactMessage(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	prefix := models.NormalizePubKeyPrefix(cast.ToString(payload["pubkey_prefix"]))

	msg := &models.Message{
		MessageClass:    models.MessageClassContact,
		PubKeyPrefix:    optNonEmpty(prefix),
		Text:            cast.ToString(payload["text"]),
		TxtType:         optInt(payload, "txt_type"),
		Signature:       optString(payload, "signature"),
		SNR:             optSNR(payload),
		SenderTimestamp: optTimestamp(payload, "sender_timestamp"),
		PathLen:         optInt(payload, "path_len"),
		ReceivedAt:      at,
	}
	return messageWriteSet(receiverKey, msg, at)
}

func buildChannelMessage(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	idx := cast.ToInt(payload["channel_idx"])

	msg := &models.Message{
		MessageClass:    models.MessageClassChannel,
		ChannelIdx:      &idx,
		ChannelName:     optString(payload, "channel_name"),
		Text:            cast.ToString(payload["text"]),
		TxtType:         optInt(payload, "txt_type"),
		Signature:       optString(payload, "signature"),
		SNR:             optSNR(payload),
		SenderTimestamp: optTimestamp(payload, "sender_timestamp"),
		PathLen:         optInt(payload, "path_len"),
		ReceivedAt:      at,
	}
	if Eligible(msg) {
		hash := events.MessageHash(msg.Text, "", msg.ChannelIdx, msg.SenderTimestamp, msg.TxtType)
		msg.EventHash = &hash
	}
	return messageWriteSet(receiverKey, msg, at)
}

func messageWriteSet(receiverKey string, msg *models.Message, at time.Time) *store.WriteSet {
	ws := &store.WriteSet{Message: msg}
	if receiverKey != "" {
		ws.Receiver = &models.MessageReceiver{
			ReceiverPublicKey: receiverKey,
			SNR:               msg.SNR,
			ReceivedAt:        at,
		}
		ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(receiverKey, at))
	}
	return ws
}

func buildTrace(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	tag := cast.ToInt64(payload["initiator_tag"])
	hash := events.TraceHash(tag)

	ws := &store.WriteSet{
		Trace: &models.TracePath{
			ReceiverKey:  optNonEmpty(receiverKey),
			InitiatorTag: tag,
			PathLen:      optInt(payload, "path_len"),
			Flags:        optInt64(payload, "flags"),
			Auth:         optInt64(payload, "auth"),
			PathHashes:   optJSON(payload, "path_hashes"),
			SNRValues:    optJSON(payload, "snr_values"),
			HopCount:     optInt(payload, "hop_count"),
			ReceivedAt:   at,
			EventHash:    &hash,
		},
	}
	if receiverKey != "" {
		ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(receiverKey, at))
	}
	return ws
}

func buildTelemetry(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	nodeKey := models.NormalizePublicKey(cast.ToString(payload["node_public_key"]))
	parsed := parsedReadings(payload["parsed_data"])
	hash := events.TelemetryHash(nodeKey, parsed, at)

	ws := &store.WriteSet{
		Telemetry: &models.Telemetry{
			NodePublicKey: nodeKey,
			LPPData:       optJSON(payload, "lpp_data"),
			ParsedData:    optJSON(payload, "parsed_data"),
			ReceivedAt:    at,
			EventHash:     &hash,
		},
	}
	ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(nodeKey, at))
	if receiverKey != "" && receiverKey != nodeKey {
		ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(receiverKey, at))
	}
	return ws
}

// buildContactSync introduces or enriches nodes from a gateway's contact
// list. A synced contact is not a sighting, so last-seen stays untouched.
func buildContactSync(receiverKey string, payload map[string]any, at time.Time) *store.WriteSet {
	ws := &store.WriteSet{}
	contacts, err := cast.ToSliceE(payload["contacts"])
	if err != nil {
		return ws
	}
	for _, raw := range contacts {
		entry, err := cast.ToStringMapE(raw)
		if err != nil {
			continue
		}
		publicKey := models.NormalizePublicKey(cast.ToString(entry["public_key"]))
		if publicKey == "" {
			continue
		}
		ws.NodeSyncs = append(ws.NodeSyncs, &models.Node{
			PublicKey: publicKey,
			Name:      optString(entry, "name"),
			AdvType:   optString(entry, "adv_type"),
			FirstSeen: at,
		})
	}
	if receiverKey != "" {
		ws.NodeUpserts = append(ws.NodeUpserts, gatewaySighting(receiverKey, at))
	}
	return ws
}

// gatewaySighting bumps a node's last-seen without touching anything a real
// advertisement would carry.
func gatewaySighting(publicKey string, at time.Time) *models.Node {
	return &models.Node{
		PublicKey: publicKey,
		FirstSeen: at,
		LastSeen:  &at,
	}
}

func optString(payload map[string]any, field string) *string {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return nil
	}
	s := cast.ToString(raw)
	if s == "" {
		return nil
	}
	return &s
}

func optNonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt(payload map[string]any, field string) *int {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return nil
	}
	return &v
}

func optInt64(payload map[string]any, field string) *int64 {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return nil
	}
	return &v
}

// optSNR accepts both field casings the gateways emit.
func optSNR(payload map[string]any) *float64 {
	for _, field := range []string{"SNR", "snr"} {
		raw, ok := payload[field]
		if !ok || raw == nil {
			continue
		}
		v, err := cast.ToFloat64E(raw)
		if err == nil {
			return &v
		}
	}
	return nil
}

// optTimestamp parses an epoch-seconds sender timestamp.
func optTimestamp(payload map[string]any, field string) *time.Time {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return nil
	}
	epoch, err := cast.ToInt64E(raw)
	if err != nil || epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}

// optJSON serializes a free-form payload field for storage.
func optJSON(payload map[string]any, field string) *string {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func parsedReadings(raw any) map[string]float64 {
	entries, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil
	}
	readings := make(map[string]float64, len(entries))
	for k, v := range entries {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		readings[k] = f
	}
	return readings
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
