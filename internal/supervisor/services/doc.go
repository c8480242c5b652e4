// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package services provides suture.Service wrappers for the aggregator's
long-running components.

Each wrapper gives its component a stable name in supervision logs and
adapts its lifecycle to suture's Serve(ctx) pattern where needed. The
wrappers depend on small local interfaces rather than the component
packages, so this package never participates in an import cycle.

# Wrappers

  - HTTPServerService: the control-plane HTTP server. Translates the
    blocking ListenAndServe pattern into context-aware shutdown.
  - RelayPoolService, DistributorService, HubService: thin delegates for
    components that already implement Serve(ctx) error.
  - StoreWriterService: delegate for the dedup writer's Run(ctx) error.
  - MaintenanceService: periodic hot-set sweeps, Badger value log GC,
    and store/uptime gauge refreshes.

# Restart Semantics

Every wrapped component is safe to restart in place. Shared state (the
dedup tiers, the admitted-event queue, the write queue, the Badger
store) lives outside the services and is injected at construction, so a
restart resumes consuming from where the previous incarnation stopped.

Typical wiring in main:

	tree.AddStorageService(services.NewStoreWriterService(writer))
	tree.AddStorageService(services.NewMaintenanceService(engine, st, maintCfg))
	tree.AddPipelineService(services.NewRelayPoolService(pool))
	tree.AddPipelineService(services.NewDistributorService(dist))
	tree.AddPipelineService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, treeCfg.ShutdownTimeout))
*/
package services
