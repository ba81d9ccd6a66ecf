// Package collector ingests gateway events from the bus, classifies them,
// collapses duplicate sightings, and persists them atomically.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/events"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
)

// Dispatcher receives persisted events for asynchronous webhook delivery.
// Enqueue must never block the ingestion path.
type Dispatcher interface {
	Enqueue(eventType events.Type, payload map[string]any, at time.Time)
}

// HeartbeatObserver is notified of transmitter liveness heartbeats.
type HeartbeatObserver interface {
	Observe(identity string, at time.Time)
}

// Options configures a Collector.
type Options struct {
	Stores     *store.Stores
	Classifier *events.Classifier
	Merge      *MergeEngine
	Dispatcher Dispatcher
	Heartbeat  HeartbeatObserver
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      clock.Clock
}

// Collector applies one incoming event at a time. Concurrency control for
// merge-eligible messages is per merge key, so independent events from
// several consumers never contend.
type Collector struct {
	stores     *store.Stores
	classifier *events.Classifier
	merge      *MergeEngine
	dispatcher Dispatcher
	heartbeat  HeartbeatObserver
	metrics    *metrics.Metrics
	log        *slog.Logger
	clock      clock.Clock
}

// New creates a collector.
func New(opts Options) *Collector {
	if opts.Classifier == nil {
		opts.Classifier = events.NewClassifier(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Collector{
		stores:     opts.Stores,
		classifier: opts.Classifier,
		merge:      opts.Merge,
		dispatcher: opts.Dispatcher,
		heartbeat:  opts.Heartbeat,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		clock:      opts.Clock,
	}
}

// HandleEvent processes one event from the bus. Failures are isolated to
// the single event and logged with enough context to replay; nothing here
// is fatal to the ingestion loop.
func (c *Collector) HandleEvent(ctx context.Context, identity, eventName string, payload map[string]any, raw []byte) {
	at := c.clock.Now().UTC()
	eventType, class := c.classifier.Classify(eventName)
	c.metrics.EventsReceived.WithLabelValues(string(eventType)).Inc()

	if eventType == events.TypeTxHeartbeat && c.heartbeat != nil {
		c.heartbeat.Observe(identity, at)
	}

	if class == events.InfoOnly && c.classifier.Excluded(eventType) {
		c.metrics.EventsDropped.WithLabelValues("excluded").Inc()
		return
	}

	entry := &models.EventLogEntry{
		PublicKey:  identity,
		EventType:  string(eventType),
		Payload:    string(raw),
		ReceivedAt: at,
	}

	if verr := events.Validate(eventType, payload); verr != nil {
		c.metrics.ValidationFailed.WithLabelValues(string(eventType)).Inc()
		note := verr.Error()
		entry.Note = &note
		c.log.Warn("event failed schema validation, audit log only",
			"event_type", eventType, "identity", identity, "error", verr)
		c.commit(ctx, eventType, &store.WriteSet{LogEntry: entry})
		return
	}

	if class == events.InfoOnly {
		c.commit(ctx, eventType, &store.WriteSet{LogEntry: entry})
		return
	}

	ws := c.buildWriteSet(eventType, identity, payload, at)
	if ws == nil {
		c.commit(ctx, eventType, &store.WriteSet{LogEntry: entry})
		return
	}
	ws.LogEntry = entry
	c.enrichReceiver(ws)

	persisted := false
	if ws.Message != nil && Eligible(ws.Message) {
		persisted = c.commitMerged(ctx, eventType, ws)
	} else {
		persisted = c.commit(ctx, eventType, ws)
	}

	if persisted && class == events.PersistAndDispatch && c.dispatcher != nil {
		c.dispatcher.Enqueue(eventType, payload, at)
	}
}

func (c *Collector) buildWriteSet(t events.Type, identity string, payload map[string]any, at time.Time) *store.WriteSet {
	switch t {
	case events.TypeAdvertisement:
		return buildAdvertisement(identity, payload, at)
	case events.TypeContactMsgRecv:
		return buildContactMessage(identity, payload, at)
	case events.TypeChannelMsgRecv:
		return buildChannelMessage(identity, payload, at)
	case events.TypeTraceData:
		return buildTrace(identity, payload, at)
	case events.TypeTelemetryResponse:
		return buildTelemetry(identity, payload, at)
	case events.TypeContacts:
		return buildContactSync(identity, payload, at)
	default:
		return nil
	}
}

// enrichReceiver attaches the operator-assigned friendly name of the
// receiving gateway, when one is tagged.
func (c *Collector) enrichReceiver(ws *store.WriteSet) {
	if ws.Receiver == nil {
		return
	}
	name, err := c.stores.NodeTags.GetTag(ws.Receiver.ReceiverPublicKey, "friendly_name")
	if err != nil {
		c.log.Debug("friendly name lookup failed",
			"public_key", ws.Receiver.ReceiverPublicKey, "error", err)
		return
	}
	if name != "" {
		ws.Receiver.ReceiverName = &name
	}
}

func (c *Collector) commit(ctx context.Context, t events.Type, ws *store.WriteSet) bool {
	if err := c.stores.Commit(ctx, ws); err != nil {
		c.metrics.EventsDropped.WithLabelValues("persistence_error").Inc()
		c.log.Error("persisting event failed", "event_type", t, "error", err)
		return false
	}
	c.metrics.EventsPersisted.WithLabelValues(string(t)).Inc()
	return true
}

// commitMerged serializes sightings per merge key, appending to an existing
// message when one is already stored inside the window. A unique-hash
// conflict means another process inserted the same transmission between our
// lookup and commit; that race is resolved by one re-read and retry.
func (c *Collector) commitMerged(ctx context.Context, t events.Type, ws *store.WriteSet) bool {
	key := Key(ws.Message)
	lock := c.merge.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := c.merge.Resolve(key)
		if err != nil {
			c.log.Error("merge lookup failed", "event_type", t, "error", err)
			return false
		}

		if existing != nil {
			merged := &store.WriteSet{
				Receiver:    ws.Receiver,
				Backfill:    Backfill(existing, ws.Message),
				NodeUpserts: ws.NodeUpserts,
				LogEntry:    ws.LogEntry,
			}
			if merged.Receiver != nil {
				merged.Receiver.MessageID = existing.ID
			}
			if !c.commit(ctx, t, merged) {
				return false
			}
			c.metrics.EventsMerged.Inc()
			c.log.Debug("merged message sighting", "message_id", existing.ID, "merge_key", key)
			return true
		}

		err = c.stores.Commit(ctx, ws)
		if err == nil {
			c.merge.Record(key, ws.Message.ID)
			c.metrics.EventsPersisted.WithLabelValues(string(t)).Inc()
			return true
		}
		if !errors.Is(err, store.ErrConflict) {
			c.metrics.EventsDropped.WithLabelValues("persistence_error").Inc()
			c.log.Error("persisting event failed", "event_type", t, "error", err)
			return false
		}
		// Lost the cross-process race; re-read and merge instead.
	}

	c.metrics.EventsDropped.WithLabelValues("merge_conflict").Inc()
	c.log.Error("message conflict not resolved after retry", "event_type", t, "merge_key", key)
	return false
}
