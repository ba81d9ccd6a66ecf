package gateway

import (
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultHeartbeatWindow is how long a transmitter heartbeat counts as live.
const DefaultHeartbeatWindow = 2 * time.Minute

// HeartbeatMonitor tracks transmitter liveness heartbeats seen on the bus.
// The mesh assumes exactly one transmitting gateway network-wide; nothing
// enforces that, so the monitor warns when a second transmitter shows up
// inside the window. Commands are never blocked by it.
type HeartbeatMonitor struct {
	live *ttlcache.Cache[string, time.Time]
	log  *slog.Logger
}

// NewHeartbeatMonitor creates a monitor. A zero window means
// DefaultHeartbeatWindow.
func NewHeartbeatMonitor(window time.Duration, logger *slog.Logger) *HeartbeatMonitor {
	if window <= 0 {
		window = DefaultHeartbeatWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache := ttlcache.New[string, time.Time](
		ttlcache.WithTTL[string, time.Time](window),
	)
	go cache.Start()
	return &HeartbeatMonitor{live: cache, log: logger}
}

// Observe records a heartbeat from a transmitter identity.
func (m *HeartbeatMonitor) Observe(identity string, at time.Time) {
	m.live.Set(identity, at, ttlcache.DefaultTTL)
	if n := m.live.Len(); n > 1 {
		m.log.Warn("multiple transmitting gateways are live",
			"count", n, "transmitters", m.Live())
	}
}

// Live returns the identities with a heartbeat inside the window.
func (m *HeartbeatMonitor) Live() []string {
	var ids []string
	for _, key := range m.live.Keys() {
		ids = append(ids, key)
	}
	return ids
}

// Stop stops the cache expiry loop.
func (m *HeartbeatMonitor) Stop() {
	m.live.Stop()
}
