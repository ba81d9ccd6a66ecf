// Package broker runs an optional embedded MQTT broker so small
// deployments need no external bus.
package broker

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/ipnet-mesh/meshcore-hub/pkg/config"
)

// Broker wraps an embedded mochi-mqtt server.
type Broker struct {
	server *mqtt.Server
	cfg    config.EmbeddedBrokerConfig
	log    *slog.Logger
}

// New builds the embedded broker with the gateway auth hook installed.
func New(cfg config.EmbeddedBrokerConfig, prefix string, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server := mqtt.New(&mqtt.Options{InlineClient: false})
	server.Log = logger

	hook := new(GatewayAuthHook)
	if err := server.AddHook(hook, &GatewayAuthHookOptions{
		Username: cfg.Username,
		Password: cfg.Password,
		Prefix:   prefix,
	}); err != nil {
		return nil, fmt.Errorf("installing auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.ListenAddr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding listener on %s: %w", cfg.ListenAddr, err)
	}

	return &Broker{server: server, cfg: cfg, log: logger}, nil
}

// Run serves until the context is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.server.Serve()
	}()
	b.log.Info("embedded broker listening", "addr", b.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		b.server.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
