// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package distributor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Broadcaster is the WebSocket hub as the distributor sees it.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// HubSink pushes each event's payload to the WebSocket hub. Broadcast
// never fails; slow clients drop frames on their own side.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a sink over the hub.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "hub" }

func (s *HubSink) Deliver(ctx context.Context, batch *Batch) error {
	for _, ev := range batch.Events {
		s.hub.Broadcast(ev.Payload)
	}
	return nil
}

// TCPSink writes newline-delimited event JSON over one persistent TCP
// connection. The dial is lazy; a write error closes the socket and the
// next delivery redials.
type TCPSink struct {
	addr        string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPSink creates a sink for one downstream host:port.
func NewTCPSink(addr string) *TCPSink {
	return &TCPSink{addr: addr, dialTimeout: 5 * time.Second}
}

func (s *TCPSink) Name() string { return "tcp:" + s.addr }

func (s *TCPSink) Deliver(ctx context.Context, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		d := net.Dialer{Timeout: s.dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.addr, err)
		}
		s.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}

	var buf bytes.Buffer
	for _, ev := range batch.Events {
		buf.Write(ev.Payload)
		buf.WriteByte('\n')
	}

	if _, err := s.conn.Write(buf.Bytes()); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write %s: %w", s.addr, err)
	}
	return nil
}

// Close drops the persistent connection if one is open.
func (s *TCPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// WebhookSink POSTs each batch's events as a JSON array to one endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink for one downstream endpoint. Pass a
// shared client so every webhook sink reuses the same connection pool;
// nil gets a default with a 10s timeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.url }

func (s *WebhookSink) Deliver(ctx context.Context, batch *Batch) error {
	payloads := make([]json.RawMessage, len(batch.Events))
	for i, ev := range batch.Events {
		payloads[i] = json.RawMessage(ev.Payload)
	}
	body, err := json.Marshal(payloads)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", s.url, resp.StatusCode)
	}
	return nil
}
