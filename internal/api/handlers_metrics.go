// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package api

import (
	"net/http"
	"runtime"

	"github.com/isorelayer/isorelayer/internal/models"
)

const bytesPerMB = 1024 * 1024

// MetricsSummary condenses the headline pipeline counters. Prometheus on
// /metrics remains the full-fidelity view; this endpoint serves dashboards
// that want one small JSON document.
func (h *Handler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	summary := models.MetricsSummary{
		EventsInQueue: len(h.queue),
		MemoryUsageMB: float64(m.Alloc) / bytesPerMB,
	}
	if h.engine != nil {
		stats := h.engine.Stats()
		summary.EventsProcessedTotal = stats.AdmittedTotal + stats.DuplicateTotal
		summary.DuplicatesFilteredTotal = stats.DuplicateTotal
	}
	if h.pool != nil {
		summary.ActiveConnections = h.pool.ActiveConnections()
	}

	respondJSON(w, http.StatusOK, summary)
}

// MetricsMemory reports Go runtime memory statistics.
func (h *Handler) MetricsMemory(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	respondJSON(w, http.StatusOK, models.MemoryStats{
		MemoryUsageMB: float64(m.Alloc) / bytesPerMB,
		AllocMB:       float64(m.Alloc) / bytesPerMB,
		TotalAllocMB:  float64(m.TotalAlloc) / bytesPerMB,
		SysMB:         float64(m.Sys) / bytesPerMB,
		HeapObjects:   m.HeapObjects,
		NumGC:         m.NumGC,
		Goroutines:    runtime.NumGoroutine(),
	})
}
