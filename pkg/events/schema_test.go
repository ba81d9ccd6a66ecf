package events

import (
	"strings"
	"testing"
)

func TestValidateAdvertisement(t *testing.T) {
	valid := map[string]any{
		"public_key": strings.Repeat("ab", 32),
		"name":       "Test Node",
		"adv_type":   "repeater",
		"flags":      146,
	}
	if err := Validate(TypeAdvertisement, valid); err != nil {
		t.Errorf("valid advertisement rejected: %v", err)
	}

	if err := Validate(TypeAdvertisement, map[string]any{"name": "x"}); err == nil {
		t.Error("missing public_key accepted")
	}
	if err := Validate(TypeAdvertisement, map[string]any{"public_key": "abc123"}); err == nil {
		t.Error("short public_key accepted")
	}
}

func TestValidateContactMsg(t *testing.T) {
	valid := map[string]any{
		"pubkey_prefix": "ABCDEF123456",
		"text":          "hello dm",
	}
	if err := Validate(TypeContactMsgRecv, valid); err != nil {
		t.Errorf("valid contact message rejected: %v", err)
	}

	if err := Validate(TypeContactMsgRecv, map[string]any{"text": "hi"}); err == nil {
		t.Error("missing pubkey_prefix accepted")
	}
	if err := Validate(TypeContactMsgRecv, map[string]any{"pubkey_prefix": "ABCDEF123456"}); err == nil {
		t.Error("missing text accepted")
	}
	if err := Validate(TypeContactMsgRecv, map[string]any{"pubkey_prefix": "zzz", "text": "hi"}); err == nil {
		t.Error("non-hex pubkey_prefix accepted")
	}
}

func TestValidateChannelMsg(t *testing.T) {
	valid := map[string]any{"channel_idx": 4, "text": "Hello from the mesh!"}
	if err := Validate(TypeChannelMsgRecv, valid); err != nil {
		t.Errorf("valid channel message rejected: %v", err)
	}

	// Payloads arrive as JSON; numeric fields are often strings on the wire.
	stringIdx := map[string]any{"channel_idx": "4", "text": "hi"}
	if err := Validate(TypeChannelMsgRecv, stringIdx); err != nil {
		t.Errorf("string channel_idx rejected: %v", err)
	}

	if err := Validate(TypeChannelMsgRecv, map[string]any{"channel_idx": 300, "text": "hi"}); err == nil {
		t.Error("channel_idx out of range accepted")
	}
	if err := Validate(TypeChannelMsgRecv, map[string]any{"text": "hi"}); err == nil {
		t.Error("missing channel_idx accepted")
	}
}

func TestValidateTraceData(t *testing.T) {
	valid := map[string]any{
		"initiator_tag": 123456,
		"path_hashes":   []any{"AA", "BB", "CC"},
		"snr_values":    []any{8.5, 4.25, -2.0},
		"hop_count":     3,
	}
	if err := Validate(TypeTraceData, valid); err != nil {
		t.Errorf("valid trace rejected: %v", err)
	}

	if err := Validate(TypeTraceData, map[string]any{}); err == nil {
		t.Error("missing initiator_tag accepted")
	}

	mismatched := map[string]any{
		"initiator_tag": 1,
		"path_hashes":   []any{"AA", "BB"},
		"snr_values":    []any{8.5},
	}
	if err := Validate(TypeTraceData, mismatched); err == nil {
		t.Error("mismatched snr_values length accepted")
	}
}

func TestValidateTelemetry(t *testing.T) {
	valid := map[string]any{"node_public_key": strings.Repeat("0f", 32)}
	if err := Validate(TypeTelemetryResponse, valid); err != nil {
		t.Errorf("valid telemetry rejected: %v", err)
	}
	if err := Validate(TypeTelemetryResponse, map[string]any{"lpp_data": "0367010a"}); err == nil {
		t.Error("missing node_public_key accepted")
	}
}

func TestValidateContacts(t *testing.T) {
	valid := map[string]any{
		"contacts": []any{
			map[string]any{"public_key": strings.Repeat("ab", 32), "name": "A"},
			map[string]any{"public_key": strings.Repeat("cd", 32)},
		},
	}
	if err := Validate(TypeContacts, valid); err != nil {
		t.Errorf("valid contacts rejected: %v", err)
	}

	bad := map[string]any{"contacts": []any{map[string]any{"name": "no key"}}}
	if err := Validate(TypeContacts, bad); err == nil {
		t.Error("contact without public_key accepted")
	}
}

func TestValidateUnknownTypeIsLenient(t *testing.T) {
	if err := Validate(Type("FOO_UNKNOWN"), map[string]any{"whatever": 1}); err != nil {
		t.Errorf("unknown type should not validate: %v", err)
	}
}
