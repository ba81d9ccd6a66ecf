package webhook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/events"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
)

// Dispatcher defaults.
const (
	DefaultWorkers         = 4
	DefaultQueueSize       = 256
	DefaultMaxAttempts     = 4
	DefaultInitialBackoff  = time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultRefreshInterval = time.Minute
	DefaultShutdownGrace   = 5 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Store           store.WebhookStore
	Workers         int
	QueueSize       int
	MaxAttempts     int
	InitialBackoff  time.Duration
	Timeout         time.Duration
	RefreshInterval time.Duration
	ShutdownGrace   time.Duration
	Client          *http.Client
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	Clock           clock.Clock
}

// Dispatcher fans persisted events out to subscribed endpoints. Deliveries
// run on a bounded worker pool; a failing or slow endpoint delays only its
// own queue slot, never ingestion.
type Dispatcher struct {
	opts  Options
	queue chan Envelope
	log   *slog.Logger
	clock clock.Clock

	mu   sync.RWMutex
	subs []*models.WebhookSubscription
}

// NewDispatcher creates a dispatcher. Subscriptions load on Run and refresh
// periodically afterwards.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Dispatcher{
		opts:  opts,
		queue: make(chan Envelope, opts.QueueSize),
		log:   opts.Logger,
		clock: opts.Clock,
	}
}

// Enqueue queues an event for delivery without blocking. When the queue is
// full the event is shed and logged; dispatch is best-effort by design of
// the ingestion path.
func (d *Dispatcher) Enqueue(eventType events.Type, payload map[string]any, at time.Time) {
	env := NewEnvelope(string(eventType), payload, at)
	select {
	case d.queue <- env:
		d.opts.Metrics.QueueDepth.WithLabelValues("webhook").Set(float64(len(d.queue)))
	default:
		d.opts.Metrics.EventsDropped.WithLabelValues("webhook_queue_full").Inc()
		d.log.Warn("webhook queue full, dropping event", "event_type", eventType)
	}
}

// Run loads subscriptions and processes the queue until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.refresh(); err != nil {
		return fmt.Errorf("loading webhook subscriptions: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := d.clock.Ticker(d.opts.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := d.refresh(); err != nil {
					d.log.Error("refreshing webhook subscriptions failed", "error", err)
				}
			}
		}
	})

	for i := 0; i < d.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case env := <-d.queue:
					d.dispatch(ctx, env)
				}
			}
		})
	}

	return g.Wait()
}

func (d *Dispatcher) refresh() error {
	subs, err := d.opts.Store.GetEnabled()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.subs = subs
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) subscriptions() []*models.WebhookSubscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subs
}

func (d *Dispatcher) dispatch(ctx context.Context, env Envelope) {
	for _, sub := range d.subscriptions() {
		if !sub.Matches(env.EventType) {
			continue
		}
		filter := "$"
		if sub.PathFilter != nil {
			filter = *sub.PathFilter
		}
		body, err := ApplyFilter(filter, env)
		if err != nil {
			d.log.Error("building webhook body failed",
				"subscription", sub.ID, "filter", filter, "error", err)
			continue
		}
		d.deliver(ctx, sub, env.EventType, body)
	}
}

// deliver posts the body with exponential backoff between failed attempts.
// After the attempt budget is spent the event is undeliverable for this
// subscription and is not re-queued.
func (d *Dispatcher) deliver(ctx context.Context, sub *models.WebhookSubscription, eventType string, body []byte) {
	backoff := d.opts.InitialBackoff
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := d.attemptContext(ctx)
		err := d.post(attemptCtx, sub.URL, body)
		cancel()
		if err == nil {
			d.opts.Metrics.WebhookDelivered.Inc()
			d.log.Debug("webhook delivered",
				"subscription", sub.ID, "event_type", eventType, "attempt", attempt)
			return
		}

		if attempt == d.opts.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			d.log.Warn("shutting down, abandoning webhook retries",
				"subscription", sub.ID, "event_type", eventType, "attempt", attempt)
			return
		}
		d.opts.Metrics.WebhookRetried.Inc()
		d.log.Warn("webhook delivery failed, retrying",
			"subscription", sub.ID, "event_type", eventType,
			"attempt", attempt, "backoff", backoff, "error", err)

		timer := d.clock.Timer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
	}

	d.opts.Metrics.WebhookFailed.Inc()
	d.log.Error("webhook undeliverable, giving up",
		"subscription", sub.ID, "url", sub.URL, "event_type", eventType,
		"attempts", d.opts.MaxAttempts)
}

// attemptContext detaches one delivery attempt from run-loop cancellation:
// shutdown grants an in-flight request ShutdownGrace to finish instead of
// aborting it mid-request.
func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, func() {
		timer := d.clock.Timer(d.opts.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-actx.Done():
		case <-timer.C:
			cancel()
		}
	})
	return actx, func() { stop(); cancel() }
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}
