// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.toml",
	"/etc/isorelayer/config.toml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds configuration from layered sources:
//  1. Defaults: built-in values for every setting
//  2. Config File: optional TOML file (if one exists)
//  3. Environment Variables: override any setting
//
// The merged result is unmarshaled into Config and validated. Precedence
// is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority).
	// Names go through an explicit transform table so stray variables
	// cannot pollute the config: RELAY_MAX_CONNECTIONS -> relay.max_connections.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process list fields that env vars deliver as comma-separated
	// strings.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file. Returns the path to the
// first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// stringSlicePaths are config paths holding string lists that env vars
// supply as comma-separated values.
var stringSlicePaths = []string{
	"relay.bootstrap_relays",
	"output.downstream_tcp",
	"output.downstream_rest",
	"server.cors_origins",
}

// intSlicePaths are config paths holding integer lists.
var intSlicePaths = []string{
	"relay.kinds",
}

// processSliceFields converts comma-separated string values into slices
// for known list fields. File-sourced values arrive as real lists and are
// left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range stringSlicePaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		if err := k.Set(path, splitTrimmed(raw)); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}

	for _, path := range intSlicePaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := splitTrimmed(raw)
		values := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return fmt.Errorf("%s: %q is not an integer", path, p)
			}
			values = append(values, n)
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}

	return nil
}

// splitTrimmed splits a comma-separated string, trimming whitespace and
// dropping empty entries.
func splitTrimmed(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return empty string and are skipped, so arbitrary
// environment content never leaks into the config.
//
// Examples:
//   - RELAY_BOOTSTRAP_RELAYS -> relay.bootstrap_relays
//   - DEDUP_STORE_PATH -> deduplication.store_path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Relay pool
		"relay_bootstrap_relays":      "relay.bootstrap_relays",
		"relay_max_connections":       "relay.max_connections",
		"relay_health_check_interval": "relay.health_check_interval",
		"relay_silence_threshold":     "relay.silence_threshold",
		"relay_reconnect_base":        "relay.reconnect_base",
		"relay_reconnect_cap":         "relay.reconnect_cap",
		"relay_kinds":                 "relay.kinds",

		// Deduplication tiers and durable store
		"dedup_hot_set_horizon": "deduplication.hot_set_horizon",
		"dedup_bloom_capacity":  "deduplication.bloom_capacity",
		"dedup_bloom_fp_rate":   "deduplication.bloom_fp_rate",
		"dedup_lru_size":        "deduplication.lru_size",
		"dedup_store_path":      "deduplication.store_path",
		"dedup_retention":       "deduplication.retention",

		// Output batching and sinks
		"output_websocket_enabled": "output.websocket_enabled",
		"output_downstream_tcp":    "output.downstream_tcp",
		"output_downstream_rest":   "output.downstream_rest",
		"output_batch_size":        "output.batch_size",
		"output_max_latency":       "output.max_latency",
		"output_queue_size":        "output.queue_size",
		"output_sink_timeout":      "output.sink_timeout",

		// HTTP server
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_timeout":      "server.timeout",
		"http_cors_origins": "server.cors_origins",

		// Monitoring
		"log_level":  "monitoring.log_level",
		"log_format": "monitoring.log_format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Skip unmapped keys.
	return ""
}
