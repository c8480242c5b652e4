// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for every setting
//  2. Config File: Optional TOML config file (config.toml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
type Config struct {
	Relay         RelayConfig         `koanf:"relay"`
	Deduplication DeduplicationConfig `koanf:"deduplication"`
	Output        OutputConfig        `koanf:"output"`
	Server        ServerConfig        `koanf:"server"`
	Monitoring    MonitoringConfig    `koanf:"monitoring"`
}

// RelayConfig holds upstream relay connection settings.
//
// Environment Variables:
//   - RELAY_BOOTSTRAP_RELAYS: Comma-separated relay urls to connect at startup
//   - RELAY_MAX_CONNECTIONS: Cap on tracked relay connections
//   - RELAY_HEALTH_CHECK_INTERVAL: How often silent connections are probed
//   - RELAY_SILENCE_THRESHOLD: Silence beyond this forces a reconnect
//   - RELAY_KINDS: Comma-separated event kinds to subscribe to
type RelayConfig struct {
	// BootstrapRelays are dialed when the pool starts. Relays added later
	// through the control plane are not persisted here.
	BootstrapRelays []string `koanf:"bootstrap_relays" validate:"dive,required,wsurl"`

	// MaxConnections caps the pool. Adds beyond it are rejected.
	MaxConnections int `koanf:"max_connections" validate:"min=1,max=1024"`

	// HealthCheckInterval is the pool's probe cadence.
	HealthCheckInterval time.Duration `koanf:"health_check_interval" validate:"gte=1s"`

	// SilenceThreshold is how long a connected relay may stay silent
	// before the health checker forces a reconnect.
	SilenceThreshold time.Duration `koanf:"silence_threshold" validate:"gt=0"`

	// ReconnectBase and ReconnectCap bound the exponential backoff
	// between dial attempts.
	ReconnectBase time.Duration `koanf:"reconnect_base" validate:"gt=0"`
	ReconnectCap  time.Duration `koanf:"reconnect_cap" validate:"gt=0"`

	// Kinds restricts subscriptions to these event kinds. Empty means all.
	Kinds []int `koanf:"kinds" validate:"dive,min=0"`
}

// DeduplicationConfig sizes the dedup tiers and the durable id store.
//
// Environment Variables:
//   - DEDUP_HOT_SET_HORIZON: How long an id stays authoritative in the hot set
//   - DEDUP_BLOOM_CAPACITY: Expected unique id count for the bloom filter
//   - DEDUP_BLOOM_FP_RATE: Target false positive rate at capacity
//   - DEDUP_LRU_SIZE: Recency cache entry cap
//   - DEDUP_STORE_PATH: BadgerDB directory
//   - DEDUP_RETENTION: TTL for stored ids (0 keeps them forever)
type DeduplicationConfig struct {
	HotSetHorizon time.Duration `koanf:"hot_set_horizon" validate:"gt=0"`
	BloomCapacity int           `koanf:"bloom_capacity" validate:"min=1000"`
	BloomFPRate   float64       `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
	LRUSize       int           `koanf:"lru_size" validate:"min=100"`
	StorePath     string        `koanf:"store_path" validate:"required"`
	Retention     time.Duration `koanf:"retention" validate:"gte=0"`
}

// OutputConfig shapes batching and the downstream delivery targets.
//
// Environment Variables:
//   - OUTPUT_WEBSOCKET_ENABLED: Serve live subscribers on /ws
//   - OUTPUT_DOWNSTREAM_TCP: Comma-separated host:port targets
//   - OUTPUT_DOWNSTREAM_REST: Comma-separated webhook urls
//   - OUTPUT_BATCH_SIZE: Events per batch before a size flush
//   - OUTPUT_MAX_LATENCY: Oldest-event age before a latency flush
//   - OUTPUT_QUEUE_SIZE: Admitted-event queue capacity
//   - OUTPUT_SINK_TIMEOUT: Per-sink delivery deadline
type OutputConfig struct {
	WebsocketEnabled bool     `koanf:"websocket_enabled"`
	DownstreamTCP    []string `koanf:"downstream_tcp" validate:"dive,required,hostname_port"`
	DownstreamREST   []string `koanf:"downstream_rest" validate:"dive,required,http_url"`

	BatchSize   int           `koanf:"batch_size" validate:"min=1,max=10000"`
	MaxLatency  time.Duration `koanf:"max_latency" validate:"gt=0"`
	QueueSize   int           `koanf:"queue_size" validate:"min=1"`
	SinkTimeout time.Duration `koanf:"sink_timeout" validate:"gt=0"`
}

// ServerConfig holds the HTTP control-plane settings. The API, /metrics
// and the /ws upgrade share this one listener.
//
// Environment Variables:
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_PORT: Listen port (default: 8080)
//   - HTTP_TIMEOUT: Read/write timeout
//   - HTTP_CORS_ORIGINS: Comma-separated allowed origins for CORS and /ws
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// CORSOrigins gates browser access to the API and the websocket
	// upgrade. "*" admits any origin.
	CORSOrigins []string `koanf:"cors_origins"`
}

// MonitoringConfig holds observability settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error, fatal
//   - LOG_FORMAT: json or console
type MonitoringConfig struct {
	LogLevel  string `koanf:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			BootstrapRelays:     []string{"wss://relay.damus.io", "wss://nos.lol"},
			MaxConnections:      50,
			HealthCheckInterval: 30 * time.Second,
			SilenceThreshold:    90 * time.Second,
			ReconnectBase:       time.Second,
			ReconnectCap:        2 * time.Minute,
			Kinds:               []int{1},
		},
		Deduplication: DeduplicationConfig{
			HotSetHorizon: 2 * time.Second,
			BloomCapacity: 1_000_000,
			BloomFPRate:   0.001,
			LRUSize:       100_000,
			StorePath:     "./data/dedup",
			Retention:     0, // keep ids forever
		},
		Output: OutputConfig{
			WebsocketEnabled: true,
			DownstreamTCP:    []string{},
			DownstreamREST:   []string{},
			BatchSize:        100,
			MaxLatency:       500 * time.Millisecond,
			QueueSize:        10_000,
			SinkTimeout:      10 * time.Second,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Monitoring: MonitoringConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}
