// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile writes a TOML file into a temp dir and points
// CONFIG_PATH at it for the duration of the test.
func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
}

// pointAtMissingConfig makes findConfigFile come up empty so defaults
// apply, regardless of files on the host.
func pointAtMissingConfig(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.toml"))
}

func TestLoad_Defaults(t *testing.T) {
	pointAtMissingConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := len(cfg.Relay.BootstrapRelays); got != 2 {
		t.Errorf("BootstrapRelays count = %d, want 2", got)
	}
	if cfg.Relay.MaxConnections != 50 {
		t.Errorf("MaxConnections = %d, want 50", cfg.Relay.MaxConnections)
	}
	if cfg.Relay.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 30s", cfg.Relay.HealthCheckInterval)
	}
	if cfg.Deduplication.HotSetHorizon != 2*time.Second {
		t.Errorf("HotSetHorizon = %v, want 2s", cfg.Deduplication.HotSetHorizon)
	}
	if cfg.Deduplication.BloomCapacity != 1_000_000 {
		t.Errorf("BloomCapacity = %d, want 1000000", cfg.Deduplication.BloomCapacity)
	}
	if cfg.Deduplication.StorePath != "./data/dedup" {
		t.Errorf("StorePath = %q", cfg.Deduplication.StorePath)
	}
	if cfg.Output.BatchSize != 100 || cfg.Output.MaxLatency != 500*time.Millisecond {
		t.Errorf("Output batching = %d/%v, want 100/500ms", cfg.Output.BatchSize, cfg.Output.MaxLatency)
	}
	if !cfg.Output.WebsocketEnabled {
		t.Error("WebsocketEnabled should default true")
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server = %s:%d, want 0.0.0.0:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.Server.CORSOrigins)
	}
	if cfg.Monitoring.LogLevel != "info" || cfg.Monitoring.LogFormat != "json" {
		t.Errorf("Monitoring = %s/%s, want info/json", cfg.Monitoring.LogLevel, cfg.Monitoring.LogFormat)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	writeConfigFile(t, `
[relay]
bootstrap_relays      = ["wss://relay.one.example"]
max_connections       = 8
health_check_interval = "10s"
silence_threshold     = "45s"
kinds                 = [1, 30023]

[deduplication]
hot_set_horizon = "5s"
store_path      = "/var/lib/isorelayer/dedup"

[output]
batch_size  = 250
max_latency = "2s"

[server]
port = 9090

[monitoring]
log_level = "debug"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Relay.BootstrapRelays) != 1 || cfg.Relay.BootstrapRelays[0] != "wss://relay.one.example" {
		t.Errorf("BootstrapRelays = %v", cfg.Relay.BootstrapRelays)
	}
	if cfg.Relay.MaxConnections != 8 {
		t.Errorf("MaxConnections = %d, want 8", cfg.Relay.MaxConnections)
	}
	if cfg.Relay.HealthCheckInterval != 10*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 10s", cfg.Relay.HealthCheckInterval)
	}
	if len(cfg.Relay.Kinds) != 2 || cfg.Relay.Kinds[1] != 30023 {
		t.Errorf("Kinds = %v, want [1 30023]", cfg.Relay.Kinds)
	}
	if cfg.Deduplication.HotSetHorizon != 5*time.Second {
		t.Errorf("HotSetHorizon = %v, want 5s", cfg.Deduplication.HotSetHorizon)
	}
	if cfg.Deduplication.StorePath != "/var/lib/isorelayer/dedup" {
		t.Errorf("StorePath = %q", cfg.Deduplication.StorePath)
	}
	if cfg.Output.BatchSize != 250 || cfg.Output.MaxLatency != 2*time.Second {
		t.Errorf("Output batching = %d/%v, want 250/2s", cfg.Output.BatchSize, cfg.Output.MaxLatency)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Monitoring.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Monitoring.LogLevel)
	}

	// Untouched sections keep their defaults.
	if cfg.Output.QueueSize != 10_000 {
		t.Errorf("QueueSize = %d, want default 10000", cfg.Output.QueueSize)
	}
	if cfg.Monitoring.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want default json", cfg.Monitoring.LogFormat)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	writeConfigFile(t, `
[server]
port = 9090

[relay]
max_connections = 8
`)
	t.Setenv("HTTP_PORT", "7777")
	t.Setenv("RELAY_BOOTSTRAP_RELAYS", "wss://a.example.com, wss://b.example.com")
	t.Setenv("RELAY_KINDS", "0,1,7")
	t.Setenv("OUTPUT_MAX_LATENCY", "250ms")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Port = %d, env should beat file", cfg.Server.Port)
	}
	if cfg.Relay.MaxConnections != 8 {
		t.Errorf("MaxConnections = %d, file should beat defaults", cfg.Relay.MaxConnections)
	}
	if len(cfg.Relay.BootstrapRelays) != 2 || cfg.Relay.BootstrapRelays[1] != "wss://b.example.com" {
		t.Errorf("BootstrapRelays = %v", cfg.Relay.BootstrapRelays)
	}
	if len(cfg.Relay.Kinds) != 3 || cfg.Relay.Kinds[2] != 7 {
		t.Errorf("Kinds = %v, want [0 1 7]", cfg.Relay.Kinds)
	}
	if cfg.Output.MaxLatency != 250*time.Millisecond {
		t.Errorf("MaxLatency = %v, want 250ms", cfg.Output.MaxLatency)
	}
	if cfg.Monitoring.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.Monitoring.LogFormat)
	}
}

func TestLoad_UnmappedEnvIgnored(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("RELAY_NONSENSE", "true")
	t.Setenv("PATH_INFO", "/should/not/leak")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantSub string
	}{
		{
			name:    "bare bootstrap relay",
			toml:    "[relay]\nbootstrap_relays = [\"relay.damus.io\"]\n",
			wantSub: "websocket url",
		},
		{
			name:    "http bootstrap relay",
			toml:    "[relay]\nbootstrap_relays = [\"https://relay.damus.io\"]\n",
			wantSub: "websocket url",
		},
		{
			name:    "bad log level",
			toml:    "[monitoring]\nlog_level = \"loud\"\n",
			wantSub: "one of",
		},
		{
			name:    "zero batch size",
			toml:    "[output]\nbatch_size = 0\n",
			wantSub: "at least",
		},
		{
			name:    "port out of range",
			toml:    "[server]\nport = 70000\n",
			wantSub: "at most",
		},
		{
			name:    "bad downstream tcp",
			toml:    "[output]\ndownstream_tcp = [\"no-port-here\"]\n",
			wantSub: "hostname_port",
		},
		{
			name:    "bad downstream rest",
			toml:    "[output]\ndownstream_rest = [\"ftp://files.example.com\"]\n",
			wantSub: "http_url",
		},
		{
			name:    "silence below health interval",
			toml:    "[relay]\nhealth_check_interval = \"1m\"\nsilence_threshold = \"30s\"\n",
			wantSub: "silence_threshold",
		},
		{
			name:    "lru larger than bloom",
			toml:    "[deduplication]\nbloom_capacity = 10000\nlru_size = 20000\n",
			wantSub: "lru_size",
		},
		{
			name:    "batch larger than queue",
			toml:    "[output]\nbatch_size = 500\nqueue_size = 100\n",
			wantSub: "batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfigFile(t, tt.toml)
			_, err := Load()
			if err == nil {
				t.Fatal("Load() = nil error, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("env path wins when it exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.toml")
		if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigPathEnvVar, path)

		if got := findConfigFile(); got != path {
			t.Errorf("findConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("missing env path falls through", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.toml"))

		// With no config.toml in the working directory the search comes
		// up empty (or finds a host-level file, which we cannot assert).
		got := findConfigFile()
		if got != "" && !strings.HasPrefix(got, "/etc/") {
			t.Errorf("findConfigFile() = %q, want empty or host path", got)
		}
	})
}

func TestValidate_Direct(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	cfg = defaultConfig()
	cfg.Relay.ReconnectBase = time.Minute
	cfg.Relay.ReconnectCap = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("reconnect_base above reconnect_cap should fail validation")
	}

	cfg = defaultConfig()
	cfg.Deduplication.BloomFPRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("fp rate above 1 should fail validation")
	}
}
