package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/topics"
)

// DefaultQueueSize bounds how many events may wait between the bus callback
// and the ingestion goroutine before new arrivals are shed.
const DefaultQueueSize = 1024

const connectTimeout = 30 * time.Second

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Prefix    string
	QueueSize int
	Collector *Collector
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type inbound struct {
	topic   string
	payload []byte
}

// Subscriber consumes gateway events from the bus and feeds them to the
// collector one at a time. The bus callback only enqueues; all parsing and
// persistence happens on the ingestion goroutine, so a slow database never
// backs up into the MQTT client.
type Subscriber struct {
	opts      SubscriberOptions
	client    mqtt.Client
	queue     chan inbound
	collector *Collector
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewSubscriber creates a subscriber. Connection happens in Run.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ClientID == "" {
		opts.ClientID = "meshhub-collector-" + uuid.NewString()[:8]
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Subscriber{
		opts:      opts,
		queue:     make(chan inbound, opts.QueueSize),
		collector: opts.Collector,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
}

// Run connects to the bus and processes events until the context is
// cancelled. Reconnects and resubscription are handled by the client; events
// published while disconnected are lost, which is the accepted bus-layer
// delivery semantics.
func (s *Subscriber) Run(ctx context.Context) error {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(s.opts.BrokerURL).
		SetClientID(s.opts.ClientID).
		SetUsername(s.opts.Username).
		SetPassword(s.opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("bus connection lost", "error", err)
		})

	s.client = mqtt.NewClient(clientOpts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connecting to bus at %s: timeout", s.opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to bus at %s: %w", s.opts.BrokerURL, err)
	}

	s.log.Info("collector subscribed", "broker", s.opts.BrokerURL, "prefix", s.opts.Prefix)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.client.Disconnect(250)
			return ctx.Err()
		case in := <-s.queue:
			s.metrics.QueueDepth.WithLabelValues("ingest").Set(float64(len(s.queue)))
			s.process(ctx, in)
		}
	}
}

// onConnect runs on every successful (re)connect so the subscription
// survives broker restarts.
func (s *Subscriber) onConnect(client mqtt.Client) {
	filter := topics.EventFilter(s.opts.Prefix)
	token := client.Subscribe(filter, 1, s.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error("subscribing failed", "filter", filter, "error", err)
			return
		}
		s.log.Info("subscribed to event topics", "filter", filter)
	}()
}

// onMessage runs on the paho callback goroutine and must not block.
func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	select {
	case s.queue <- inbound{topic: msg.Topic(), payload: msg.Payload()}:
	default:
		s.metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		s.log.Warn("ingest queue full, dropping event", "topic", msg.Topic())
	}
}

func (s *Subscriber) process(ctx context.Context, in inbound) {
	route, err := topics.Parse(s.opts.Prefix, in.topic)
	if err != nil {
		s.metrics.EventsDropped.WithLabelValues("malformed_topic").Inc()
		s.log.Warn("dropping event with malformed topic", "topic", in.topic, "error", err)
		return
	}
	if route.Direction != topics.DirectionEvent {
		return
	}

	// The identity segment becomes a node public key downstream, so it has
	// to be a full 64-hex identity before any persistence happens.
	identity := models.NormalizePublicKey(route.Identity)
	if identity == "" {
		s.metrics.EventsDropped.WithLabelValues("invalid_identity").Inc()
		s.log.Warn("dropping event with invalid gateway identity",
			"topic", in.topic, "identity", route.Identity)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(in.payload, &payload); err != nil {
		s.metrics.EventsDropped.WithLabelValues("malformed_payload").Inc()
		s.log.Warn("dropping event with unparsable payload",
			"topic", in.topic, "payload", string(in.payload), "error", err)
		return
	}

	s.collector.HandleEvent(ctx, identity, route.Name, payload, in.payload)
}

// drain processes whatever is already queued before shutdown so accepted
// events are not lost.
func (s *Subscriber) drain() {
	for {
		select {
		case in := <-s.queue:
			s.process(context.Background(), in)
		default:
			return
		}
	}
}
