// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package config provides centralized configuration management.

Configuration is loaded by Load() from three layered sources, later
layers overriding earlier ones:

 1. Built-in defaults (every setting has one)
 2. A TOML config file: ./config.toml, /etc/isorelayer/config.toml, or
    the path named by CONFIG_PATH
 3. Environment variables, mapped through an explicit transform table
    (unmapped variables are ignored)

# Configuration Structure

  - RelayConfig: upstream relay pool (bootstrap urls, caps, health checks)
  - DeduplicationConfig: dedup tier sizing and the durable id store
  - OutputConfig: batching, queue depth, downstream sinks
  - ServerConfig: the shared HTTP listener (API, /metrics, /ws)
  - MonitoringConfig: log level and format

# Example config.toml

	[relay]
	bootstrap_relays      = ["wss://relay.damus.io", "wss://nos.lol"]
	max_connections       = 50
	health_check_interval = "30s"
	silence_threshold     = "90s"
	kinds                 = [1]

	[deduplication]
	hot_set_horizon = "2s"
	bloom_capacity  = 1000000
	bloom_fp_rate   = 0.001
	lru_size        = 100000
	store_path      = "./data/dedup"
	retention       = "0s"        # 0 = keep ids forever

	[output]
	websocket_enabled = true
	downstream_tcp    = []        # ["host:port", ...]
	downstream_rest   = []        # ["https://...", ...]
	batch_size        = 100
	max_latency       = "500ms"
	queue_size        = 10000

	[server]
	host         = "0.0.0.0"
	port         = 8080
	cors_origins = ["*"]

	[monitoring]
	log_level  = "info"
	log_format = "json"

# Validation

Load() rejects invalid configuration with field-level errors: struct
tags cover per-field constraints (ws/wss scheme on relay urls, port and
size ranges, log level membership), and semantic checks cover
relationships tags cannot express (silence threshold vs. health
interval, batch size vs. queue size).

Durations are Go duration strings ("500ms", "2s", "5m") in both the TOML
file and environment variables.
*/
package config
