// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package metrics provides Prometheus instrumentation for the relayer:
// ingest and deduplication counters, relay connection state, distributor
// batching, sink delivery outcomes, durable store writes, and the HTTP
// control plane.
package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest and Deduplication Metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_events_received_total",
			Help: "Total number of events received from upstream relays",
		},
		[]string{"relay"},
	)

	EventsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "isorelayer_events_admitted_total",
			Help: "Total number of events admitted as first sightings",
		},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_events_duplicate_total",
			Help: "Total number of events rejected as duplicates",
		},
		[]string{"tier"}, // "hot", "cache", "filter", "store"
	)

	EventsInvalid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_events_invalid_total",
			Help: "Total number of events dropped before deduplication (bad id, decode failure)",
		},
		[]string{"relay"},
	)

	AdmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isorelayer_admit_duration_seconds",
			Help:    "Duration of deduplication admit decisions in seconds",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 1}, // Fast path is sub-microsecond
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_queue_depth",
			Help: "Current number of admitted events waiting for the distributor",
		},
	)

	// Deduplication Tier Gauges
	HotSetEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_dedup_hot_set_entries",
			Help: "Current number of ids inside the hot set horizon",
		},
	)

	RecencyCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_dedup_cache_entries",
			Help: "Current number of ids in the recency cache",
		},
	)

	FilterFillRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_dedup_filter_fill_ratio",
			Help: "Fraction of probabilistic filter bits set",
		},
	)

	// Relay Connection Metrics
	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "isorelayer_relay_connections",
			Help: "Number of relay connections by state",
		},
		[]string{"state"}, // "connected", "connecting", "reconnecting", "disconnected"
	)

	RelayReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_relay_reconnects_total",
			Help: "Total number of reconnect attempts per relay",
		},
		[]string{"relay"},
	)

	// Distributor Metrics
	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_batches_flushed_total",
			Help: "Total number of batches flushed by trigger",
		},
		[]string{"trigger"}, // "size", "latency", "shutdown"
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isorelayer_batch_size_events",
			Help:    "Number of events per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isorelayer_batch_flush_duration_seconds",
			Help:    "Duration of batch delivery to all sinks in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_sink_deliveries_total",
			Help: "Total number of batch deliveries per sink and outcome",
		},
		[]string{"sink", "status"}, // status: "success", "failure", "rejected"
	)

	SinkBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "isorelayer_sink_breaker_open",
			Help: "Whether the circuit breaker for a sink is open (1) or closed (0)",
		},
		[]string{"sink"},
	)

	// Durable Store Metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_store_writes_total",
			Help: "Total number of durable store batch writes by outcome",
		},
		[]string{"status"}, // "success", "failure"
	)

	StoreWriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "isorelayer_store_write_retries_total",
			Help: "Total number of retried durable store writes",
		},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_store_entries",
			Help: "Approximate number of ids held in the durable store",
		},
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_store_size_bytes",
			Help: "Estimated on-disk size of the durable store",
		},
	)

	// WebSocket Fan-out Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_websocket_connections",
			Help: "Current number of downstream WebSocket subscribers",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "isorelayer_websocket_messages_sent_total",
			Help: "Total number of messages sent to WebSocket subscribers",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "isorelayer_websocket_messages_dropped_total",
			Help: "Total number of messages dropped for slow WebSocket subscribers",
		},
	)

	// HTTP Control Plane Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isorelayer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isorelayer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_http_active_requests",
			Help: "Number of HTTP requests currently in flight",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "isorelayer_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isorelayer_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordEventReceived records an event arriving from a relay.
func RecordEventReceived(relay string) {
	EventsReceived.WithLabelValues(relay).Inc()
}

// RecordAdmitted records a first-sighting admit decision.
func RecordAdmitted() {
	EventsAdmitted.Inc()
}

// RecordDuplicate records a duplicate rejection at the given tier.
func RecordDuplicate(tier string) {
	EventsDuplicate.WithLabelValues(tier).Inc()
}

// RecordInvalid records an event dropped before deduplication.
func RecordInvalid(relay string) {
	EventsInvalid.WithLabelValues(relay).Inc()
}

// ObserveAdmit records the duration of an admit decision.
func ObserveAdmit(duration time.Duration) {
	AdmitDuration.Observe(duration.Seconds())
}

// UpdateQueueDepth updates the distributor queue depth gauge.
func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// UpdateDedupSizes updates the per-tier occupancy gauges.
func UpdateDedupSizes(hotSet, cache int, fillRatio float64) {
	HotSetEntries.Set(float64(hotSet))
	RecencyCacheEntries.Set(float64(cache))
	FilterFillRatio.Set(fillRatio)
}

// UpdateRelayConnections sets the gauge for one connection state.
func UpdateRelayConnections(state string, count int) {
	RelayConnections.WithLabelValues(state).Set(float64(count))
}

// RecordRelayReconnect records a reconnect attempt for a relay.
func RecordRelayReconnect(relay string) {
	RelayReconnects.WithLabelValues(relay).Inc()
}

// RecordBatchFlush records a flushed batch with its trigger and delivery time.
func RecordBatchFlush(trigger string, size int, duration time.Duration) {
	BatchesFlushed.WithLabelValues(trigger).Inc()
	BatchSize.Observe(float64(size))
	BatchFlushDuration.Observe(duration.Seconds())
}

// RecordSinkDelivery records a per-sink delivery outcome.
func RecordSinkDelivery(sink, status string) {
	SinkDeliveries.WithLabelValues(sink, status).Inc()
}

// SetSinkBreakerOpen flips the breaker gauge for a sink.
func SetSinkBreakerOpen(sink string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	SinkBreakerOpen.WithLabelValues(sink).Set(v)
}

// RecordStoreWrite records a durable store batch write outcome.
func RecordStoreWrite(success bool) {
	if success {
		StoreWrites.WithLabelValues("success").Inc()
	} else {
		StoreWrites.WithLabelValues("failure").Inc()
	}
}

// RecordStoreWriteRetry records a retried durable store write.
func RecordStoreWriteRetry() {
	StoreWriteRetries.Inc()
}

// UpdateStoreGauges updates the durable store occupancy gauges.
func UpdateStoreGauges(entries, sizeBytes int64) {
	StoreEntries.Set(float64(entries))
	StoreSizeBytes.Set(float64(sizeBytes))
}

// UpdateWSConnections sets the WebSocket subscriber gauge.
func UpdateWSConnections(count int) {
	WSConnections.Set(float64(count))
}

// RecordWSFrameSent records a frame delivered into a subscriber's buffer.
func RecordWSFrameSent() {
	WSMessagesSent.Inc()
}

// RecordWSFrameDropped records a frame dropped for a slow subscriber.
func RecordWSFrameDropped() {
	WSMessagesDropped.Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight HTTP request gauge.
func TrackActiveRequest(active bool) {
	if active {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// SetAppInfo records the running version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

var startTime = time.Now()

// UpdateUptime refreshes the uptime gauge. Called from the maintenance
// loop's stats tick.
func UpdateUptime() {
	AppUptime.Set(time.Since(startTime).Seconds())
}
