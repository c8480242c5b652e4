// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/isorelayer/isorelayer/internal/dedup"
	"github.com/isorelayer/isorelayer/internal/event"
)

// fakeSession is an in-memory session driven by the test.
type fakeSession struct {
	ch     chan incoming
	closed chan struct{}
	once   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{ch: make(chan incoming, 16), closed: make(chan struct{})}
}

func (s *fakeSession) events() <-chan incoming { return s.ch }

func (s *fakeSession) close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *fakeSession) emit(id string, payload []byte) {
	s.ch <- incoming{id: id, payload: payload}
}

// end simulates the relay dropping the subscription.
func (s *fakeSession) end() { close(s.ch) }

// fakeTransport hands out fake sessions and counts dials.
type fakeTransport struct {
	mu       sync.Mutex
	dials    int
	failNext int
	sessions []*fakeSession
}

func (f *fakeTransport) dial(ctx context.Context, url string, kinds []int) (session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("dial refused")
	}
	s := newFakeSession()
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeTransport) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

// fakeAdmitter admits each id exactly once.
type fakeAdmitter struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeAdmitter() *fakeAdmitter {
	return &fakeAdmitter{seen: make(map[string]struct{})}
}

func (a *fakeAdmitter) Admit(ctx context.Context, id string, payload []byte) (dedup.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[id]; ok {
		return dedup.Result{Decision: dedup.Duplicate, Tier: dedup.TierCache}, nil
	}
	a.seen[id] = struct{}{}
	return dedup.Result{Decision: dedup.Admitted}, nil
}

func testPoolConfig() Config {
	return Config{
		MaxConnections:   8,
		ReconnectBase:    5 * time.Millisecond,
		ReconnectCap:     50 * time.Millisecond,
		HealthInterval:   time.Hour,
		SilenceThreshold: time.Hour,
	}
}

// newTestPool starts a serving pool over a fake transport and stops it
// at test cleanup.
func newTestPool(t *testing.T, cfg Config, tr *fakeTransport) (*Pool, chan *event.Inbound) {
	t.Helper()
	queue := make(chan *event.Inbound, 64)
	p := NewPool(cfg, newFakeAdmitter(), queue)
	p.dial = tr.dial

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("pool did not stop")
		}
	})

	waitFor(t, 2*time.Second, p.serving)
	return p, queue
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func recvEvent(t *testing.T, queue <-chan *event.Inbound) *event.Inbound {
	t.Helper()
	select {
	case ev := <-queue:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived on the queue")
		return nil
	}
}

func hexID(i int) string {
	return fmt.Sprintf("%064x", i)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"wss://relay.example.com", "wss://relay.example.com", false},
		{"wss://relay.example.com/", "wss://relay.example.com", false},
		{"relay.example.com", "wss://relay.example.com", false},
		{"https://relay.example.com", "wss://relay.example.com", false},
		{"localhost:7447", "ws://localhost:7447", false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeURL(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("normalizeURL(%q) error = %v, want ErrInvalidURL", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeURL(%q) failed: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPool_ConnectAndSubscribe(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("ConnectAndSubscribe failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return p.ConnectionStatuses()["wss://relay.one.example"] == StateConnected
	})

	if tr.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", tr.dialCount())
	}
	if got := p.ActiveConnections(); got != 1 {
		t.Errorf("ActiveConnections() = %d, want 1", got)
	}
}

func TestPool_ConnectIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	// Same relay through a different spelling of the url.
	if err := p.ConnectAndSubscribe("relay.one.example"); err != nil {
		t.Fatalf("repeat add failed: %v", err)
	}

	if got := len(p.ListRelays()); got != 1 {
		t.Errorf("tracked relays = %d, want 1", got)
	}
	waitFor(t, 2*time.Second, func() bool { return tr.dialCount() == 1 })
}

func TestPool_MaxConnections(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxConnections = 1
	tr := &fakeTransport{}
	p, _ := newTestPool(t, cfg, tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := p.ConnectAndSubscribe("wss://relay.two.example"); !errors.Is(err, ErrPoolFull) {
		t.Errorf("second add error = %v, want ErrPoolFull", err)
	}
}

func TestPool_DisconnectRelay(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return p.ConnectionStatuses()["wss://relay.one.example"] == StateConnected
	})

	if err := p.DisconnectRelay("wss://relay.one.example"); err != nil {
		t.Fatalf("DisconnectRelay failed: %v", err)
	}
	if got := len(p.ListRelays()); got != 0 {
		t.Errorf("tracked relays after remove = %d, want 0", got)
	}
	if err := p.DisconnectRelay("wss://relay.one.example"); !errors.Is(err, ErrRelayNotFound) {
		t.Errorf("repeat remove error = %v, want ErrRelayNotFound", err)
	}
}

func TestPool_InvalidURL(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe(""); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("add error = %v, want ErrInvalidURL", err)
	}
	if err := p.DisconnectRelay(""); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("remove error = %v, want ErrInvalidURL", err)
	}
}

func TestPool_NotServing(t *testing.T) {
	queue := make(chan *event.Inbound, 1)
	p := NewPool(testPoolConfig(), newFakeAdmitter(), queue)
	p.dial = (&fakeTransport{}).dial

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("add on stopped pool error = %v, want ErrPoolStopped", err)
	}
}

func TestPool_AdmittedEventReachesQueue(t *testing.T) {
	tr := &fakeTransport{}
	p, queue := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return tr.sessionCount() == 1 })
	sess := tr.session(0)

	sess.emit(hexID(1), []byte(`{"kind":1}`))
	sess.emit(hexID(1), []byte(`{"kind":1}`)) // duplicate, must not forward
	sess.emit(hexID(2), []byte(`{"kind":7}`))

	first := recvEvent(t, queue)
	if first.ID != hexID(1) {
		t.Errorf("first forwarded id = %s, want %s", first.ID, hexID(1))
	}
	if first.Relay != "wss://relay.one.example" {
		t.Errorf("forwarded relay = %s", first.Relay)
	}
	if string(first.Payload) != `{"kind":1}` {
		t.Errorf("forwarded payload = %s", first.Payload)
	}

	second := recvEvent(t, queue)
	if second.ID != hexID(2) {
		t.Errorf("second forwarded id = %s, want %s (duplicate must be dropped)", second.ID, hexID(2))
	}
}

func TestPool_MalformedIDDropped(t *testing.T) {
	tr := &fakeTransport{}
	p, queue := newTestPool(t, testPoolConfig(), tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return tr.sessionCount() == 1 })
	sess := tr.session(0)

	sess.emit("not-a-valid-id", []byte(`{}`))
	sess.emit(hexID(3), []byte(`{}`))

	got := recvEvent(t, queue)
	if got.ID != hexID(3) {
		t.Errorf("forwarded id = %s, want %s (malformed id must be dropped)", got.ID, hexID(3))
	}
	if p.ConnectionStatuses()["wss://relay.one.example"] != StateConnected {
		t.Error("connection should survive malformed events")
	}
}

func TestPool_HealthForcesReconnect(t *testing.T) {
	cfg := testPoolConfig()
	cfg.HealthInterval = 20 * time.Millisecond
	cfg.SilenceThreshold = 25 * time.Millisecond
	tr := &fakeTransport{}
	p, _ := newTestPool(t, cfg, tr)

	if err := p.ConnectAndSubscribe("wss://relay.one.example"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return p.ConnectionStatuses()["wss://relay.one.example"] == StateConnected
	})

	// No events arrive, so the health loop must force a redial.
	waitFor(t, 5*time.Second, func() bool { return tr.dialCount() >= 2 })
}

func TestPool_RelayInfos(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPool(t, testPoolConfig(), tr)

	for _, u := range []string{"wss://relay.two.example", "wss://relay.one.example"} {
		if err := p.ConnectAndSubscribe(u); err != nil {
			t.Fatalf("add %s failed: %v", u, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return p.ActiveConnections() == 2 })

	infos := p.RelayInfos()
	if len(infos) != 2 {
		t.Fatalf("RelayInfos() returned %d entries, want 2", len(infos))
	}
	if infos[0].URL != "wss://relay.one.example" || infos[1].URL != "wss://relay.two.example" {
		t.Errorf("infos not sorted by url: %s, %s", infos[0].URL, infos[1].URL)
	}
	for _, info := range infos {
		if info.Status != "connected" {
			t.Errorf("relay %s status = %s, want connected", info.URL, info.Status)
		}
		if info.LastSuccess.IsZero() {
			t.Errorf("relay %s has zero last_success", info.URL)
		}
		if info.ConsecutiveFailures != 0 {
			t.Errorf("relay %s failures = %d, want 0", info.URL, info.ConsecutiveFailures)
		}
	}
}

func TestPool_BootstrapRelays(t *testing.T) {
	cfg := testPoolConfig()
	cfg.BootstrapRelays = []string{"wss://relay.one.example", "wss://relay.two.example"}
	tr := &fakeTransport{}
	p, _ := newTestPool(t, cfg, tr)

	waitFor(t, 2*time.Second, func() bool { return p.ActiveConnections() == 2 })
	if got := len(p.ListRelays()); got != 2 {
		t.Errorf("tracked relays = %d, want 2", got)
	}
}
