// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package websocket streams deduplicated events to live subscribers.

The package implements a hub-and-spoke pattern over gorilla/websocket.
The distributor hands each flushed batch's payloads to the Hub, which
fans every payload out to all connected clients as one text frame per
event.

	┌──────────┐
	│   Hub    │ ← Broadcasts to all clients
	└────┬─────┘
	     │
	┌────┴─────┬─────────┬─────────┐
	│          │         │         │
	│ Client1  │ Client2 │ Client3 │
	│          │         │         │
	└──────────┴─────────┴─────────┘

Each client has two goroutines:
  - readPump: surfaces disconnects, services pong frames
  - writePump: delivers frames, sends keepalive pings

Delivery Policy:

The hub is strictly one-way and best-effort. Every client owns a buffered
send channel; a frame arriving while a client's buffer is full is dropped
for that client alone. Slow subscribers lose frames, fast subscribers
receive everything, and no subscriber can stall the hub or its peers.

Connection Lifecycle:

 1. Client connects via HTTP upgrade (GET /ws, see internal/api)
 2. Hub registers client
 3. Client starts read/write goroutines
 4. Hub broadcasts frames to all clients
 5. Client disconnects (network error or explicit close)
 6. Hub unregisters client and closes its send channel

Usage:

	hub := websocket.NewHub()
	go hub.Serve(ctx)

	// In the HTTP handler for GET /ws:
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
	    return
	}
	client := websocket.NewClient(hub, conn)
	hub.Register <- client
	client.Start()

	// From the distributor's hub sink:
	hub.Broadcast(payload)

Timeouts:

  - writeWait: 10 seconds (time allowed to write a frame)
  - pongWait: 60 seconds (time allowed between pongs)
  - pingPeriod: 54 seconds (ping interval, must be < pongWait)
*/
package websocket
