package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload = payload.([]byte)
	return &fakeToken{err: p.err}
}

const hubIdentity = "CCCC567890ABCDEF1234567890ABCDEF1234567890ABCDEF1234567890ABCDEF"

func newTestGateway(pub *fakePublisher) *Gateway {
	return New(Options{
		Client:   pub,
		Prefix:   "meshcore/BOS",
		Identity: hubIdentity,
		Metrics:  metrics.New(),
	})
}

func TestSendChannelMsg(t *testing.T) {
	pub := &fakePublisher{}
	gw := newTestGateway(pub)

	err := gw.Send(CommandSendChannelMsg, map[string]any{
		"channel_idx": 4,
		"text":        "evening net starts now",
		"extra":       "dropped",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	wantTopic := "meshcore/BOS/" + hubIdentity + "/command/send_channel_msg"
	if pub.topic != wantTopic {
		t.Errorf("topic = %q, want %q", pub.topic, wantTopic)
	}

	var body map[string]any
	if err := json.Unmarshal(pub.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["channel_idx"] != float64(4) || body["text"] != "evening net starts now" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["extra"]; ok {
		t.Error("unknown fields must not be forwarded")
	}
}

func TestSendMsgNormalizesDestination(t *testing.T) {
	pub := &fakePublisher{}
	gw := newTestGateway(pub)

	err := gw.Send(CommandSendMsg, map[string]any{
		"destination": "0xa1b2c3d4e5f6",
		"text":        "hi",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(pub.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["destination"] != "A1B2C3D4E5F6" {
		t.Errorf("destination = %v, want normalized prefix", body["destination"])
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		command string
		payload map[string]any
		field   string
	}{
		{"missing destination", CommandSendMsg, map[string]any{"text": "hi"}, "destination"},
		{"short destination", CommandSendMsg, map[string]any{"destination": "abc", "text": "hi"}, "destination"},
		{"missing text", CommandSendMsg, map[string]any{"destination": "a1b2c3d4e5f6"}, "text"},
		{"channel out of range", CommandSendChannelMsg, map[string]any{"channel_idx": 300, "text": "x"}, "channel_idx"},
		{"channel missing", CommandSendChannelMsg, map[string]any{"text": "x"}, "channel_idx"},
		{"flood not bool", CommandSendAdvert, map[string]any{"flood": "maybe"}, "flood"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			err := newTestGateway(pub).Send(tt.command, tt.payload)
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("Send() error = %v, want RequestError", err)
			}
			if reqErr.Field != tt.field {
				t.Errorf("field = %q, want %q", reqErr.Field, tt.field)
			}
			if pub.topic != "" {
				t.Error("invalid command must not publish")
			}
		})
	}
}

func TestSendUnknownCommand(t *testing.T) {
	err := newTestGateway(&fakePublisher{}).Send("reboot_everything", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Send() error = %v, want ErrUnknownCommand", err)
	}
}

func TestHeartbeatMonitorWarnsOnSecondTransmitter(t *testing.T) {
	m := NewHeartbeatMonitor(time.Minute, nil)
	defer m.Stop()

	m.Observe("AAAA", time.Now())
	if n := len(m.Live()); n != 1 {
		t.Fatalf("live = %d, want 1", n)
	}

	m.Observe("BBBB", time.Now())
	live := m.Live()
	if len(live) != 2 {
		t.Fatalf("live = %v, want both transmitters", live)
	}

	// Repeat heartbeats from the same identity do not add entries.
	m.Observe("AAAA", time.Now())
	if n := len(m.Live()); n != 2 {
		t.Errorf("live = %d after repeat heartbeat, want 2", n)
	}
}
