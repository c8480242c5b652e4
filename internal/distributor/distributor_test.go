// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package distributor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/isorelayer/isorelayer/internal/event"
)

// memSink records every delivered batch, with optional failure and delay
// injection.
type memSink struct {
	name  string
	err   error
	delay time.Duration

	mu      sync.Mutex
	batches []*Batch
	calls   int
}

func newMemSink(name string) *memSink {
	return &memSink{name: name}
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Deliver(ctx context.Context, batch *Batch) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *memSink) batch(i int) *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[i]
}

func (s *memSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func inboundEvent(i int) *event.Inbound {
	return &event.Inbound{
		ID:       fmt.Sprintf("%064x", i),
		Payload:  []byte(fmt.Sprintf(`{"n":%d}`, i)),
		Relay:    "wss://relay.test.example",
		Received: time.Now(),
	}
}

// startDistributor runs d until test cleanup.
func startDistributor(t *testing.T, d *Distributor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("distributor did not stop")
		}
	})
	return cancel
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

func TestDistributor_FlushBySize(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	sink := newMemSink("a")
	d := New(queue, Config{BatchSize: 3, MaxLatency: time.Hour}, sink)
	startDistributor(t, d)

	for i := 0; i < 6; i++ {
		queue <- inboundEvent(i)
	}

	waitFor(t, 2*time.Second, func() bool { return sink.batchCount() == 2 })

	first, second := sink.batch(0), sink.batch(1)
	if len(first.Events) != 3 || len(second.Events) != 3 {
		t.Errorf("batch sizes = %d, %d, want 3, 3", len(first.Events), len(second.Events))
	}
	if first.Events[0].ID != inboundEvent(0).ID || second.Events[0].ID != inboundEvent(3).ID {
		t.Error("batches do not preserve queue order")
	}
	if first.ID == second.ID || first.ID == "" {
		t.Errorf("batch ids not unique: %q, %q", first.ID, second.ID)
	}
}

func TestDistributor_FlushByLatency(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	sink := newMemSink("a")
	d := New(queue, Config{BatchSize: 100, MaxLatency: 30 * time.Millisecond}, sink)
	startDistributor(t, d)

	queue <- inboundEvent(0)
	queue <- inboundEvent(1)

	// Far below the batch size, so only the age trigger can flush.
	waitFor(t, 2*time.Second, func() bool { return sink.batchCount() == 1 })
	if got := len(sink.batch(0).Events); got != 2 {
		t.Errorf("flushed %d events, want 2", got)
	}
}

func TestDistributor_LatencyMeasuresOldestEvent(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	sink := newMemSink("a")
	d := New(queue, Config{BatchSize: 100, MaxLatency: 50 * time.Millisecond}, sink)
	startDistributor(t, d)

	queue <- inboundEvent(0)
	time.Sleep(20 * time.Millisecond)
	queue <- inboundEvent(1) // must not extend the deadline

	waitFor(t, 2*time.Second, func() bool { return sink.batchCount() == 1 })
	if got := len(sink.batch(0).Events); got != 2 {
		t.Errorf("flushed %d events, want both in one batch", got)
	}
}

func TestDistributor_ShutdownFlushesPartial(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	sink := newMemSink("a")
	d := New(queue, Config{BatchSize: 100, MaxLatency: time.Hour}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Serve(ctx)
	}()

	queue <- inboundEvent(0)
	queue <- inboundEvent(1)
	queue <- inboundEvent(2)

	// Give the loop a moment to pull from the queue, then stop it.
	waitFor(t, 2*time.Second, func() bool { return len(queue) == 0 })
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("distributor did not stop")
	}

	if sink.batchCount() != 1 {
		t.Fatalf("batches after shutdown = %d, want 1", sink.batchCount())
	}
	if got := len(sink.batch(0).Events); got != 3 {
		t.Errorf("final batch holds %d events, want 3", got)
	}
}

func TestDistributor_AllSinksGetEachBatch(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	a, b, c := newMemSink("a"), newMemSink("b"), newMemSink("c")
	d := New(queue, Config{BatchSize: 2, MaxLatency: time.Hour}, a, b, c)
	startDistributor(t, d)

	queue <- inboundEvent(0)
	queue <- inboundEvent(1)

	for _, s := range []*memSink{a, b, c} {
		waitFor(t, 2*time.Second, func() bool { return s.batchCount() == 1 })
	}
	if a.batch(0).ID != b.batch(0).ID || b.batch(0).ID != c.batch(0).ID {
		t.Error("sinks saw different batches for one flush")
	}
}

func TestDistributor_SinkFailureIsolated(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	good := newMemSink("good")
	bad := newMemSink("bad")
	bad.setErr(errors.New("target down"))

	d := New(queue, Config{BatchSize: 2, MaxLatency: time.Hour}, bad, good)
	startDistributor(t, d)

	queue <- inboundEvent(0)
	queue <- inboundEvent(1)
	waitFor(t, 2*time.Second, func() bool { return good.batchCount() == 1 })

	queue <- inboundEvent(2)
	queue <- inboundEvent(3)
	waitFor(t, 2*time.Second, func() bool { return good.batchCount() == 2 })

	// The failing sink kept receiving attempts.
	waitFor(t, 2*time.Second, func() bool { return bad.callCount() == 2 })
	if bad.batchCount() != 0 {
		t.Errorf("failing sink recorded %d batches, want 0", bad.batchCount())
	}
}

func TestDistributor_SlowSinkBoundedByTimeout(t *testing.T) {
	queue := make(chan *event.Inbound, 16)
	slow := newMemSink("slow")
	slow.delay = time.Hour
	fast := newMemSink("fast")

	d := New(queue, Config{BatchSize: 1, MaxLatency: time.Hour, SinkTimeout: 30 * time.Millisecond}, slow, fast)
	startDistributor(t, d)

	queue <- inboundEvent(0)
	waitFor(t, 2*time.Second, func() bool { return fast.batchCount() == 1 })

	// The stalled sink must not wedge later flushes.
	queue <- inboundEvent(1)
	waitFor(t, 2*time.Second, func() bool { return fast.batchCount() == 2 })
}
