// Package metrics registers the hub's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter the ingestion and dispatch paths touch.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived    *prometheus.CounterVec
	EventsPersisted   *prometheus.CounterVec
	EventsMerged      prometheus.Counter
	EventsDropped     *prometheus.CounterVec
	ValidationFailed  *prometheus.CounterVec
	WebhookDelivered  prometheus.Counter
	WebhookFailed     prometheus.Counter
	WebhookRetried    prometheus.Counter
	CommandsPublished *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
}

// New builds and registers the metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "events_received_total",
		Help:      "Events received from the bus, by event type",
	}, []string{"event_type"})
	m.EventsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "events_persisted_total",
		Help:      "Events that reached typed persistence, by event type",
	}, []string{"event_type"})
	m.EventsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "events_merged_total",
		Help:      "Message sightings merged into an existing record",
	})
	m.EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "events_dropped_total",
		Help:      "Events dropped before persistence, by reason",
	}, []string{"reason"})
	m.ValidationFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "validation_failures_total",
		Help:      "Schema validation failures, by event type",
	}, []string{"event_type"})
	m.WebhookDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries acknowledged with a 2xx",
	})
	m.WebhookFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "webhook_failures_total",
		Help:      "Webhook deliveries abandoned after exhausting retries",
	})
	m.WebhookRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "webhook_retries_total",
		Help:      "Individual webhook delivery attempts that failed and were retried",
	})
	m.CommandsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshhub",
		Name:      "commands_published_total",
		Help:      "Commands published to the bus, by command name",
	}, []string{"command"})
	m.QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meshhub",
		Name:      "queue_depth",
		Help:      "Current depth of the internal queues",
	}, []string{"queue"})

	m.registry.MustRegister(
		m.EventsReceived,
		m.EventsPersisted,
		m.EventsMerged,
		m.EventsDropped,
		m.ValidationFailed,
		m.WebhookDelivered,
		m.WebhookFailed,
		m.WebhookRetried,
		m.CommandsPublished,
		m.QueueDepth,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
