// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package models

import (
	"time"
)

// APIResponse is the error envelope returned by all HTTP endpoints when a
// request fails. Successful responses return their documented payload
// directly; only failures are wrapped so clients can switch on a stable
// shape regardless of which endpoint rejected them.
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "VALIDATION_ERROR",
//	    "message": "url failed wsurl validation"
//	  },
//	  "metadata": {"timestamp": "2026-08-23T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries the server timestamp on enveloped responses.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError is a structured error with a machine-readable code and a
// human-readable message.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - INVALID_URL: relay URL failed normalization
//   - POOL_FULL: relay pool is at its connection cap
//   - NOT_FOUND: resource doesn't exist
//   - SERVICE_UNAVAILABLE: subsystem not running or shutting down
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is the liveness payload served on /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// RelayOpResponse acknowledges a relay add or remove operation.
type RelayOpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RelayListResponse lists the URLs currently tracked by the pool.
type RelayListResponse struct {
	Relays []string `json:"relays"`
	Count  int      `json:"count"`
}

// MetricsSummary condenses the headline pipeline counters for dashboards
// that do not scrape Prometheus.
//
// EventsProcessedTotal counts every event that reached the deduplication
// engine; DuplicatesFilteredTotal is the subset it rejected.
type MetricsSummary struct {
	EventsProcessedTotal    int64   `json:"events_processed_total"`
	DuplicatesFilteredTotal int64   `json:"duplicates_filtered_total"`
	EventsInQueue           int     `json:"events_in_queue"`
	ActiveConnections       int     `json:"active_connections"`
	MemoryUsageMB           float64 `json:"memory_usage_mb"`
}

// MemoryStats is a point-in-time snapshot of Go runtime memory usage.
type MemoryStats struct {
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	AllocMB       float64 `json:"alloc_mb"`
	TotalAllocMB  float64 `json:"total_alloc_mb"`
	SysMB         float64 `json:"sys_mb"`
	HeapObjects   uint64  `json:"heap_objects"`
	NumGC         uint32  `json:"num_gc"`
	Goroutines    int     `json:"goroutines"`
}
