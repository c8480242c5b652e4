// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub fans event frames out to every connected subscriber.
//
// Delivery is one-way and best-effort: each client has a buffered send
// channel, and a frame that finds the buffer full is dropped for that
// client only. A slow subscriber therefore loses frames but never stalls
// the hub or its peers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub loop until ctx is canceled, then closes every
// connected client and returns ctx.Err(). Designed for suture
// supervision.
//
// DETERMINISM: Uses priority-based selection to ensure predictable
// behavior when multiple channels are ready simultaneously:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast frames
// This ensures client state is always consistent before frames are
// delivered.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
			// No lifecycle events pending
		}

		// Priority 3: Deliver frames or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case frame := <-h.broadcast:
			h.broadcastToClients(frame)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSConnections(total)
	logging.Info().Str("client", client.id).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSConnections(total)
	logging.Info().Str("client", client.id).Int("total_clients", total).Msg("websocket client disconnected")
}

// Broadcast queues one event payload for delivery to every client as a
// single text frame. Never blocks: if the hub loop has fallen behind and
// the broadcast buffer is full, the frame is dropped.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.framesDropped.Add(1)
		metrics.RecordWSFrameDropped()
		logging.Warn().Msg("broadcast channel full, dropping frame")
	}
}

// broadcastToClients delivers one frame to every connected client.
//
// DETERMINISM: Sorts clients by id for consistent delivery order, which
// keeps tests reproducible and delivery sequences predictable.
// A client whose send buffer is full has this frame dropped; the client
// itself stays registered and keeps receiving later frames it can absorb.
func (h *Hub) broadcastToClients(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- frame:
			h.framesSent.Add(1)
			metrics.RecordWSFrameSent()
		default:
			h.framesDropped.Add(1)
			client.dropped.Add(1)
			metrics.RecordWSFrameDropped()
			logging.Debug().Str("client", client.id).Msg("client send buffer full, dropping frame")
		}
	}
}

// logGracefulShutdown closes all connected clients and logs structured
// shutdown information.
//
// Note: ctx.Err() is NOT logged as an error because context cancellation
// is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Uint64("frames_sent", h.framesSent.Load()).
		Uint64("frames_dropped", h.framesDropped.Load()).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes all connected clients during shutdown.
// DETERMINISM: Closes clients in id order for consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.UpdateWSConnections(0)
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FramesSent returns the total frames delivered into client buffers.
func (h *Hub) FramesSent() uint64 {
	return h.framesSent.Load()
}

// FramesDropped returns the total frames dropped for slow consumers.
func (h *Hub) FramesDropped() uint64 {
	return h.framesDropped.Load()
}
