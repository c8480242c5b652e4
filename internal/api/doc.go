// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package api provides the HTTP control plane: health and status reporting,
runtime relay management, metric summaries, the Prometheus exposition
endpoint, and the WebSocket upgrade into the broadcast hub.

Routing uses chi with middleware from the chi ecosystem (go-chi/cors,
go-chi/httprate) plus the request-id and Prometheus instrumentation
middleware from internal/middleware. Handlers depend on the relay pool
and deduplication engine through small interfaces so tests can substitute
fakes.

Endpoints:

	GET    /health              liveness probe
	GET    /metrics             Prometheus exposition
	GET    /status              pool and dedup engine snapshot
	GET    /api/metrics/summary headline pipeline counters
	GET    /api/metrics/memory  Go runtime memory stats
	GET    /api/relays          tracked relay URLs
	POST   /api/relays/add      subscribe to a relay at runtime
	DELETE /api/relays/remove   drop a relay
	GET    /ws                  WebSocket upgrade into the hub

Successful responses return their documented payload directly; failures
are wrapped in the models.APIResponse error envelope.
*/
package api
