package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ipnet-mesh/meshcore-hub/internal/broker"
	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/collector"
	"github.com/ipnet-mesh/meshcore-hub/pkg/config"
	"github.com/ipnet-mesh/meshcore-hub/pkg/events"
	"github.com/ipnet-mesh/meshcore-hub/pkg/gateway"
	"github.com/ipnet-mesh/meshcore-hub/pkg/routes"
	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
	"github.com/ipnet-mesh/meshcore-hub/pkg/webhook"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if err := run(cfg); err != nil && err != context.Canceled {
		slog.Error("hub exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := slogcolor.DefaultOptions
	opts.Level = level
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))
}

func run(cfg config.Configuration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Embedded.Enabled {
		b, err := broker.New(cfg.MQTT.Embedded, cfg.MQTT.Prefix, slog.Default())
		if err != nil {
			return fmt.Errorf("setting up embedded broker: %w", err)
		}
		g.Go(func() error { return b.Run(ctx) })
	}

	db, err := store.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		return err
	}

	stores := store.NewStores(db)
	m := metrics.New()

	var excluded []events.Type
	for _, name := range cfg.Collector.ExcludedEvents {
		excluded = append(excluded, events.Canonical(name))
	}
	classifier := events.NewClassifier(excluded)

	merge := collector.NewMergeEngine(stores.Messages, cfg.Collector.MergeWindow, nil)
	defer merge.Stop()

	heartbeat := gateway.NewHeartbeatMonitor(cfg.Gateway.HeartbeatWindow, slog.Default())
	defer heartbeat.Stop()

	dispatcher := webhook.NewDispatcher(webhook.Options{
		Store:           stores.Webhooks,
		Workers:         cfg.Webhook.Workers,
		QueueSize:       cfg.Webhook.QueueSize,
		MaxAttempts:     cfg.Webhook.MaxAttempts,
		InitialBackoff:  cfg.Webhook.InitialBackoff,
		Timeout:         cfg.Webhook.Timeout,
		RefreshInterval: cfg.Webhook.RefreshInterval,
		Metrics:         m,
		Logger:          slog.Default(),
	})
	g.Go(func() error { return dispatcher.Run(ctx) })

	coll := collector.New(collector.Options{
		Stores:     stores,
		Classifier: classifier,
		Merge:      merge,
		Dispatcher: dispatcher,
		Heartbeat:  heartbeat,
		Metrics:    m,
		Logger:     slog.Default(),
	})

	subscriber := collector.NewSubscriber(collector.SubscriberOptions{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		Prefix:    cfg.MQTT.Prefix,
		QueueSize: cfg.Collector.QueueSize,
		Collector: coll,
		Metrics:   m,
		Logger:    slog.Default(),
	})
	g.Go(func() error { return subscriber.Run(ctx) })

	cleanup := collector.NewCleanup(collector.CleanupOptions{
		Stores:    stores,
		Retention: cfg.Collector.Retention,
		Interval:  cfg.Collector.CleanupInterval,
		Logger:    slog.Default(),
	})
	g.Go(func() error { return cleanup.Run(ctx) })

	if cfg.Gateway.CommandsEnabled {
		pubClient, err := connectPublisher(cfg.MQTT)
		if err != nil {
			return err
		}
		defer pubClient.Disconnect(250)

		gw := gateway.New(gateway.Options{
			Client:   pubClient,
			Prefix:   cfg.MQTT.Prefix,
			Identity: cfg.Gateway.Identity,
			Metrics:  m,
			Logger:   slog.Default(),
		})

		g.Go(func() error {
			wr := &routes.WebRouter{}
			return wr.Initialize(ctx, cfg.Gateway, gw, dbHealth{db: db}, m)
		})
	}

	role, _ := cfg.Gateway.ParsedRole()
	slog.Info("meshcore hub started",
		"role", role, "prefix", cfg.MQTT.Prefix, "broker", cfg.MQTT.BrokerURL)

	return g.Wait()
}

// connectPublisher opens the bus connection used for outbound commands.
func connectPublisher(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID("meshhub-gateway-" + uuid.NewString()[:8]).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connecting command publisher to %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting command publisher to %s: %w", cfg.BrokerURL, err)
	}
	return client, nil
}

type dbHealth struct {
	db interface{ Ping() error }
}

func (h dbHealth) Healthy() bool {
	return h.db.Ping() == nil
}
