// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/isorelayer/isorelayer/internal/config"
	"github.com/isorelayer/isorelayer/internal/dedup"
	"github.com/isorelayer/isorelayer/internal/event"
	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/models"
	"github.com/isorelayer/isorelayer/internal/relay"
	ws "github.com/isorelayer/isorelayer/internal/websocket"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "iso-relayer"

// RelayManager is the relay pool surface the control plane depends on.
// *relay.Pool satisfies it.
type RelayManager interface {
	ConnectAndSubscribe(url string) error
	DisconnectRelay(url string) error
	ListRelays() []string
	RelayInfos() []relay.RelayInfo
	ActiveConnections() int
}

// DedupInspector exposes the deduplication engine's occupancy snapshot
// and cumulative counters. *dedup.Engine satisfies it.
type DedupInspector interface {
	Stats() dedup.Stats
}

// Handler contains dependencies for the API handlers.
//
// Handler methods are split across multiple files:
//   - handlers.go: Handler struct, constructor, health/status (this file)
//   - handlers_helpers.go: respond helpers and validation
//   - handlers_relays.go: runtime relay management
//   - handlers_metrics.go: metric summary endpoints
//   - handlers_websocket.go: WebSocket upgrade
type Handler struct {
	config    *config.Config
	pool      RelayManager
	engine    DedupInspector
	wsHub     *ws.Hub
	queue     <-chan *event.Inbound
	startTime time.Time
}

// NewHandler creates the API handler. wsHub and queue may be nil when the
// corresponding subsystem is disabled; the affected endpoints degrade
// rather than fail at construction.
func NewHandler(cfg *config.Config, pool RelayManager, engine DedupInspector, wsHub *ws.Hub, queue <-chan *event.Inbound) *Handler {
	return &Handler{
		config:    cfg,
		pool:      pool,
		engine:    engine,
		wsHub:     wsHub,
		queue:     queue,
		startTime: time.Now(),
	}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "healthy",
		Service: ServiceName,
	})
}

// statusResponse aggregates the pool and engine view served on /status.
type statusResponse struct {
	ActiveConnections int               `json:"active_connections"`
	Connections       []relay.RelayInfo `json:"connections"`
	Deduplication     dedup.Stats       `json:"deduplication_engine"`
	UptimeSeconds     int64             `json:"uptime_seconds"`
}

// Status reports the relay pool and deduplication engine state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Connections:   []relay.RelayInfo{},
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.pool != nil {
		resp.ActiveConnections = h.pool.ActiveConnections()
		resp.Connections = h.pool.RelayInfos()
	}
	if h.engine != nil {
		resp.Deduplication = h.engine.Stats()
	}

	respondJSON(w, http.StatusOK, resp)
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout guarding against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin; only non-browser clients omit it.
	// An empty Origin would bypass CORS entirely, so reject it.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	// Fail open when unconfigured (tests, development).
	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Server.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
