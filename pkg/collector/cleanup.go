package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
)

// CleanupOptions configures the retention sweeper.
type CleanupOptions struct {
	Stores    *store.Stores
	Retention time.Duration // how long event history is kept
	Interval  time.Duration // how often the sweep runs
	Logger    *slog.Logger
	Clock     clock.Clock
}

// Cleanup periodically prunes event history past the retention period.
// Node snapshots are never pruned; only the historical tables shrink.
type Cleanup struct {
	stores    *store.Stores
	retention time.Duration
	interval  time.Duration
	log       *slog.Logger
	clock     clock.Clock
}

// NewCleanup creates the retention sweeper.
func NewCleanup(opts CleanupOptions) *Cleanup {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Cleanup{
		stores:    opts.Stores,
		retention: opts.Retention,
		interval:  opts.Interval,
		log:       opts.Logger,
		clock:     opts.Clock,
	}
}

// Run sweeps once at startup and then on every interval tick until the
// context is cancelled.
func (c *Cleanup) Run(ctx context.Context) error {
	if c.retention <= 0 {
		c.log.Info("event retention cleanup disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	c.sweep(ctx)

	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleanup) sweep(ctx context.Context) {
	cutoff := c.clock.Now().UTC().Add(-c.retention)
	result, err := c.stores.Prune(ctx, cutoff)
	if err != nil {
		c.log.Error("retention sweep failed", "cutoff", cutoff, "error", err)
		return
	}
	c.log.Info("retention sweep finished",
		"cutoff", cutoff,
		"messages", result.Messages,
		"advertisements", result.Advertisements,
		"traces", result.Traces,
		"telemetry", result.Telemetry,
		"event_log", result.EventLog,
	)
}
