// Package gateway validates outbound commands and publishes them to the
// bus command topic space for a transmitting gateway to pick up.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cast"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/topics"
)

// Command names accepted by the gateway.
const (
	CommandSendMsg        = "send_msg"
	CommandSendChannelMsg = "send_channel_msg"
	CommandSendAdvert     = "send_advert"
)

const publishTimeout = 10 * time.Second

// ErrUnknownCommand is returned for command names outside the fixed set.
var ErrUnknownCommand = errors.New("unknown command")

// RequestError marks a command payload that failed validation. The HTTP
// surface maps it to a 400.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("field %q %s", e.Field, e.Reason)
}

// Publisher is the bus publish surface the gateway needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures a Gateway.
type Options struct {
	Client   Publisher
	Prefix   string
	Identity string // hub public identity used as the command sender segment
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Gateway validates and publishes commands. The publish always carries the
// hub's own identity; the wildcard identity is only for subscription
// filters, so transmitting gateways subscribe with "+" and see commands
// from any hub instance.
type Gateway struct {
	client   Publisher
	prefix   string
	identity string
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New creates a command gateway.
func New(opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gateway{
		client:   opts.Client,
		prefix:   opts.Prefix,
		identity: opts.Identity,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
}

// Send validates the command payload and publishes it. Whether a
// transmitting gateway is actually listening is not verified here; the
// single-transmitter assumption is operational, not protocol-enforced.
func (g *Gateway) Send(name string, payload map[string]any) error {
	body, err := validateCommand(name, payload)
	if err != nil {
		return err
	}

	route := topics.Route{
		Prefix:    g.prefix,
		Identity:  g.identity,
		Direction: topics.DirectionCommand,
		Name:      name,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding command %s: %w", name, err)
	}

	token := g.client.Publish(route.Format(), 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing command %s: timeout", name)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing command %s: %w", name, err)
	}

	g.metrics.CommandsPublished.WithLabelValues(name).Inc()
	g.log.Info("command published", "command", name, "topic", route.Format())
	return nil
}

// validateCommand checks the per-command schema and returns the normalized
// outbound payload. Unknown extra fields are not forwarded.
func validateCommand(name string, payload map[string]any) (map[string]any, error) {
	switch name {
	case CommandSendMsg:
		dest := models.NormalizePubKeyPrefix(cast.ToString(payload["destination"]))
		if dest == "" {
			return nil, &RequestError{"destination", "must be a hex pubkey prefix"}
		}
		text := cast.ToString(payload["text"])
		if text == "" {
			return nil, &RequestError{"text", "is required"}
		}
		return map[string]any{"destination": dest, "text": text}, nil

	case CommandSendChannelMsg:
		raw, ok := payload["channel_idx"]
		if !ok {
			return nil, &RequestError{"channel_idx", "is required"}
		}
		idx, err := cast.ToIntE(raw)
		if err != nil || idx < 0 || idx > 255 {
			return nil, &RequestError{"channel_idx", "must be an integer in 0..255"}
		}
		text := cast.ToString(payload["text"])
		if text == "" {
			return nil, &RequestError{"text", "is required"}
		}
		return map[string]any{"channel_idx": idx, "text": text}, nil

	case CommandSendAdvert:
		body := map[string]any{}
		if raw, ok := payload["flood"]; ok {
			flood, err := cast.ToBoolE(raw)
			if err != nil {
				return nil, &RequestError{"flood", "must be a boolean"}
			}
			body["flood"] = flood
		}
		return body, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}
