// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package services

import (
	"context"
)

// ContextServer is implemented by the pipeline components that already
// follow the suture pattern: relay.Pool, distributor.Distributor, and
// websocket.Hub all expose Serve(ctx) error. The wrappers below exist to
// give each one a stable name in supervision logs and to keep this
// package free of imports from the component packages.
type ContextServer interface {
	Serve(ctx context.Context) error
}

// ContextRunner is implemented by components that expose Run(ctx) error
// instead, currently the dedup store writer.
type ContextRunner interface {
	Run(ctx context.Context) error
}

// RelayPoolService wraps the relay connection pool as a supervised
// service. The pool redials its configured relays on restart, so a
// supervisor restart recovers from a crashed pool loop without losing
// relay membership.
type RelayPoolService struct {
	pool ContextServer
	name string
}

// NewRelayPoolService creates a new relay pool service wrapper.
func NewRelayPoolService(pool ContextServer) *RelayPoolService {
	return &RelayPoolService{pool: pool, name: "relay-pool"}
}

// Serve implements suture.Service by delegating to the pool.
func (s *RelayPoolService) Serve(ctx context.Context) error {
	return s.pool.Serve(ctx)
}

// String implements fmt.Stringer for logging.
func (s *RelayPoolService) String() string {
	return s.name
}

// DistributorService wraps the batching distributor as a supervised
// service. The distributor reads from the shared admitted queue, so a
// restart resumes wherever the queue left off; at most one partially
// accumulated batch is re-collected.
type DistributorService struct {
	distributor ContextServer
	name        string
}

// NewDistributorService creates a new distributor service wrapper.
func NewDistributorService(d ContextServer) *DistributorService {
	return &DistributorService{distributor: d, name: "distributor"}
}

// Serve implements suture.Service by delegating to the distributor.
func (s *DistributorService) Serve(ctx context.Context) error {
	return s.distributor.Serve(ctx)
}

// String implements fmt.Stringer for logging.
func (s *DistributorService) String() string {
	return s.name
}

// HubService wraps the WebSocket hub as a supervised service. A restart
// drops connected subscribers; clients are expected to reconnect and
// resume from live traffic.
type HubService struct {
	hub  ContextServer
	name string
}

// NewHubService creates a new WebSocket hub service wrapper.
func NewHubService(hub ContextServer) *HubService {
	return &HubService{hub: hub, name: "websocket-hub"}
}

// Serve implements suture.Service by delegating to the hub.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Serve(ctx)
}

// String implements fmt.Stringer for logging.
func (s *HubService) String() string {
	return s.name
}

// StoreWriterService wraps the async dedup store writer as a supervised
// service. The writer drains the shared write queue, so a restart picks
// the queue back up; ids buffered in a failed flush are retried by the
// writer itself before it ever returns.
type StoreWriterService struct {
	writer ContextRunner
	name   string
}

// NewStoreWriterService creates a new store writer service wrapper.
func NewStoreWriterService(w ContextRunner) *StoreWriterService {
	return &StoreWriterService{writer: w, name: "store-writer"}
}

// Serve implements suture.Service by delegating to the writer's Run.
func (s *StoreWriterService) Serve(ctx context.Context) error {
	return s.writer.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (s *StoreWriterService) String() string {
	return s.name
}
