package events

import "testing"

func TestClassifyKnownTypes(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name      string
		wantType  Type
		wantClass Class
	}{
		{"advertisement", TypeAdvertisement, PersistAndDispatch},
		{"contact_msg_recv", TypeContactMsgRecv, PersistAndDispatch},
		{"channel_msg_recv", TypeChannelMsgRecv, PersistAndDispatch},
		{"trace_data", TypeTraceData, PersistAndDispatch},
		{"telemetry_response", TypeTelemetryResponse, PersistAndDispatch},
		{"contacts", TypeContacts, PersistOnly},
		{"send_confirmed", TypeSendConfirmed, InfoOnly},
		{"battery", TypeBattery, InfoOnly},
	}

	for _, tt := range tests {
		gotType, gotClass := c.Classify(tt.name)
		if gotType != tt.wantType || gotClass != tt.wantClass {
			t.Errorf("Classify(%q) = (%v, %v), want (%v, %v)",
				tt.name, gotType, gotClass, tt.wantType, tt.wantClass)
		}
	}
}

func TestClassifyUnknownIsInfoOnly(t *testing.T) {
	c := NewClassifier(nil)

	gotType, gotClass := c.Classify("foo_unknown")
	if gotType != Type("FOO_UNKNOWN") {
		t.Errorf("type = %q", gotType)
	}
	if gotClass != InfoOnly {
		t.Errorf("class = %v, want InfoOnly", gotClass)
	}
}

func TestDefaultExclusionList(t *testing.T) {
	c := NewClassifier(nil)

	if !c.Excluded(TypeContactsProgress) {
		t.Error("CONTACTS_PROGRESS should be excluded by default")
	}
	if c.Excluded(TypeAdvertisement) {
		t.Error("ADVERTISEMENT must never be excluded")
	}
}

func TestCustomExclusionList(t *testing.T) {
	c := NewClassifier([]Type{TypeBattery})

	if !c.Excluded(TypeBattery) {
		t.Error("BATTERY should be excluded")
	}
	if c.Excluded(TypeContactsProgress) {
		t.Error("custom list replaces the default list")
	}
}
