package events

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// ValidationError describes a known event type whose payload is missing or
// carries an invalid required field. The event is not discarded; it degrades
// to an audit-log-only record with this error attached as the note.
type ValidationError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q %s", e.Type, e.Field, e.Reason)
}

// Validate checks the required fields of a known event type against the
// published payload contract. Unknown event types validate trivially (they
// carry no schema). Unknown extra fields always pass through unvalidated.
func Validate(t Type, payload map[string]any) *ValidationError {
	switch t {
	case TypeAdvertisement:
		return validateAdvertisement(payload)
	case TypeContactMsgRecv:
		return validateContactMsg(payload)
	case TypeChannelMsgRecv:
		return validateChannelMsg(payload)
	case TypeTraceData:
		return validateTraceData(payload)
	case TypeTelemetryResponse:
		return validateTelemetry(payload)
	case TypeContacts:
		return validateContacts(payload)
	default:
		return nil
	}
}

func validateAdvertisement(payload map[string]any) *ValidationError {
	key := cast.ToString(payload["public_key"])
	if key == "" {
		return &ValidationError{TypeAdvertisement, "public_key", "is required"}
	}
	if models.NormalizePublicKey(key) == "" {
		return &ValidationError{TypeAdvertisement, "public_key", "is not a 64-character hex identity"}
	}
	return nil
}

func validateContactMsg(payload map[string]any) *ValidationError {
	prefix := cast.ToString(payload["pubkey_prefix"])
	if prefix == "" {
		return &ValidationError{TypeContactMsgRecv, "pubkey_prefix", "is required"}
	}
	if models.NormalizePubKeyPrefix(prefix) == "" {
		return &ValidationError{TypeContactMsgRecv, "pubkey_prefix", "is not a hex sender prefix"}
	}
	if _, ok := payload["text"]; !ok {
		return &ValidationError{TypeContactMsgRecv, "text", "is required"}
	}
	return nil
}

func validateChannelMsg(payload map[string]any) *ValidationError {
	raw, ok := payload["channel_idx"]
	if !ok {
		return &ValidationError{TypeChannelMsgRecv, "channel_idx", "is required"}
	}
	idx, err := cast.ToIntE(raw)
	if err != nil || idx < 0 || idx > 255 {
		return &ValidationError{TypeChannelMsgRecv, "channel_idx", "must be an integer in 0..255"}
	}
	if _, ok := payload["text"]; !ok {
		return &ValidationError{TypeChannelMsgRecv, "text", "is required"}
	}
	return nil
}

func validateTraceData(payload map[string]any) *ValidationError {
	raw, ok := payload["initiator_tag"]
	if !ok {
		return &ValidationError{TypeTraceData, "initiator_tag", "is required"}
	}
	tag, err := cast.ToInt64E(raw)
	if err != nil || tag < 0 || tag > 0xFFFFFFFF {
		return &ValidationError{TypeTraceData, "initiator_tag", "must be a uint32"}
	}

	// path_hashes and snr_values are optional but must stay parallel.
	hashes, hasHashes := payload["path_hashes"]
	snrs, hasSNRs := payload["snr_values"]
	if hasHashes && hasSNRs {
		hs, err1 := cast.ToSliceE(hashes)
		ss, err2 := cast.ToSliceE(snrs)
		if err1 != nil || err2 != nil || len(hs) != len(ss) {
			return &ValidationError{TypeTraceData, "snr_values", "must be an array parallel to path_hashes"}
		}
	}
	return nil
}

func validateTelemetry(payload map[string]any) *ValidationError {
	key := cast.ToString(payload["node_public_key"])
	if key == "" {
		return &ValidationError{TypeTelemetryResponse, "node_public_key", "is required"}
	}
	if models.NormalizePublicKey(key) == "" {
		return &ValidationError{TypeTelemetryResponse, "node_public_key", "is not a 64-character hex identity"}
	}
	return nil
}

func validateContacts(payload map[string]any) *ValidationError {
	raw, ok := payload["contacts"]
	if !ok {
		return &ValidationError{TypeContacts, "contacts", "is required"}
	}
	contacts, err := cast.ToSliceE(raw)
	if err != nil {
		return &ValidationError{TypeContacts, "contacts", "must be an array"}
	}
	for i, c := range contacts {
		entry, err := cast.ToStringMapE(c)
		if err != nil {
			return &ValidationError{TypeContacts, fmt.Sprintf("contacts[%d]", i), "must be an object"}
		}
		if models.NormalizePublicKey(cast.ToString(entry["public_key"])) == "" {
			return &ValidationError{TypeContacts, fmt.Sprintf("contacts[%d].public_key", i), "is not a 64-character hex identity"}
		}
	}
	return nil
}
