// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package supervisor provides process supervision for the aggregator using
suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of all long-running services in the process. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure
isolation:

	RootSupervisor ("isorelayer")
	├── StorageSupervisor ("storage-layer")
	│   ├── StoreWriterService
	│   └── MaintenanceService
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── RelayPoolService
	│   ├── DistributorService
	│   └── HubService (if websocket output is enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

This hierarchy ensures that:
  - A crash in the relay pool doesn't drop WebSocket subscribers
  - A wedged store writer doesn't stop event ingestion
  - The control plane restarts independently of the data path

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. Counter decays exponentially over time (FailureDecay seconds)
 3. When counter exceeds FailureThreshold, supervisor enters backoff
 4. During backoff, restarts are delayed by FailureBackoff duration

Restarting is safe for every supervised service here: the relay pool
redials its configured relays, the distributor re-reads from the shared
admitted queue, the writer drains the shared write queue, and the hub
starts empty and lets clients reconnect. State that must survive a
restart (the dedup tiers, the Badger store) lives outside the services
and is injected at construction.

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

# Structured Logging

Supervision events (starts, stops, failures, backoff) are logged through
the sutureslog adapter. Pass slog.New(logging.NewSlogHandler()) so the
events land in the same zerolog stream as everything else.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

# What Is NOT Supervised

The BadgerDB store is intentionally not supervised. It is an embedded
library, opened before the tree starts and closed after the tree stops,
so the writer never races a restarting store. Individual relay
connections are likewise not tree services: the pool owns their
goroutines and handles per-relay reconnection with backoff internally.

# See Also

  - internal/supervisor/services: Service wrappers
  - github.com/thejerf/suture/v4: Underlying library
*/
package supervisor
