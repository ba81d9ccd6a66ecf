// Package config loads hub configuration from file, environment, and
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// Configuration is the full hub configuration tree.
type Configuration struct {
	Log       LogConfig       `mapstructure:"log"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Collector CollectorConfig `mapstructure:"collector"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MQTTConfig struct {
	BrokerURL string `mapstructure:"broker_url"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	// Prefix is the topic root; it may itself contain slashes, e.g.
	// "meshcore/BOS" for a regional deployment.
	Prefix   string               `mapstructure:"prefix"`
	Embedded EmbeddedBrokerConfig `mapstructure:"embedded"`
}

// EmbeddedBrokerConfig enables the built-in broker for self-contained
// deployments; gateways then connect straight to the hub.
type EmbeddedBrokerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DB, d.SSLMode)
}

type CollectorConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	ExcludedEvents  []string      `mapstructure:"excluded_events"`
	MergeWindow     time.Duration `mapstructure:"merge_window"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type WebhookConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type GatewayConfig struct {
	Role            string        `mapstructure:"role"`
	Identity        string        `mapstructure:"identity"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	APIKeys         []string      `mapstructure:"api_keys"` // "salt:hash" entries from genkey
	HeartbeatWindow time.Duration `mapstructure:"heartbeat_window"`
	CommandsEnabled bool          `mapstructure:"commands_enabled"`
}

// ParsedRole resolves the configured role string.
func (g GatewayConfig) ParsedRole() (models.Role, error) {
	return models.ParseRole(g.Role)
}

// Load reads configuration from the given file (optional), MESHHUB_*
// environment variables, and defaults.
func Load(path string) (Configuration, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.prefix", "meshcore")
	v.SetDefault("mqtt.embedded.enabled", false)
	v.SetDefault("mqtt.embedded.listen_addr", ":1883")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "meshhub")
	v.SetDefault("database.db", "meshhub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("collector.queue_size", 1024)
	v.SetDefault("collector.merge_window", time.Hour)
	v.SetDefault("collector.retention", 0) // disabled
	v.SetDefault("collector.cleanup_interval", 24*time.Hour)
	v.SetDefault("webhook.workers", 4)
	v.SetDefault("webhook.queue_size", 256)
	v.SetDefault("webhook.max_attempts", 4)
	v.SetDefault("webhook.initial_backoff", time.Second)
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.refresh_interval", time.Minute)
	v.SetDefault("gateway.role", string(models.RoleReceiver))
	v.SetDefault("gateway.listen_addr", ":8080")
	v.SetDefault("gateway.heartbeat_window", 2*time.Minute)
	v.SetDefault("gateway.commands_enabled", true)

	v.SetEnvPrefix("MESHHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	// Durations and lists come in as strings when set via environment.
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var cfg Configuration
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Configuration{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if _, err := cfg.Gateway.ParsedRole(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}
