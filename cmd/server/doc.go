// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package main is the entry point for the IsoRelayer server.

IsoRelayer subscribes to a set of upstream Nostr relays, collapses the
duplicate events the relay network naturally produces into a single
exactly-once stream, and fans that stream out in batches to WebSocket
subscribers, raw TCP consumers, and REST webhooks.

# Application Architecture

The server runs under Suture v4 process supervision:

	RootSupervisor ("isorelayer")
	├── StorageSupervisor ("storage-layer")
	│   ├── Store writer (async BadgerDB batch commits)
	│   └── Maintenance (hot-set sweep, value log GC, store gauges)
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── Relay pool (one goroutine per upstream relay)
	│   ├── Distributor (batching fan-out to sinks)
	│   └── WebSocket hub (when websocket output is enabled)
	└── APISupervisor ("api-layer")
	    └── HTTP server (REST API, /metrics, /ws upgrade)

Component initialization order:

 1. Configuration: Koanf v2 with TOML file and environment variables
 2. Logging: zerolog with JSON/console output modes
 3. Durable store: BadgerDB id store (fatal if it cannot open)
 4. Dedup engine: hot set, bloom filter, recency cache over the store
 5. Pipeline: relay pool -> admitted queue -> distributor -> sinks
 6. Control plane: chi router over one listener
 7. Supervisor tree: everything long-running serves under it

The BadgerDB store opens before the tree starts and closes after the
tree stops, so no supervised service ever sees a closed store.

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest
priority wins):
  - Environment variables
  - Config file (CONFIG_PATH, ./config.toml, /etc/isorelayer/config.toml)
  - Built-in defaults

Every setting has a usable default; a bare binary connects to public
bootstrap relays and serves on :8080.

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:
  - The supervisor tree winds services down leaf-first
  - The distributor flushes its partial batch
  - The store writer drains and commits the write queue
  - The HTTP server finishes in-flight requests (10s timeout)
  - The Badger store closes last

# Example Usage

Defaults only:

	./isorelayer

Custom relay set and store path:

	export RELAY_BOOTSTRAP_RELAYS=wss://relay.damus.io,wss://nos.lol
	export RELAY_KINDS=1,30023
	export DEDUP_STORE_PATH=/data/dedup
	./isorelayer

Fan out to downstream consumers:

	export OUTPUT_DOWNSTREAM_TCP=10.0.0.5:9000
	export OUTPUT_DOWNSTREAM_REST=https://ingest.example.com/hook
	export OUTPUT_BATCH_SIZE=200
	./isorelayer

Docker:

	docker run -d \
	  -e RELAY_BOOTSTRAP_RELAYS=wss://relay.damus.io \
	  -v isorelayer-data:/data \
	  -e DEDUP_STORE_PATH=/data/dedup \
	  -p 8080:8080 \
	  ghcr.io/isorelayer/isorelayer
*/
package main
