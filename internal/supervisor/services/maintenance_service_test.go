// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/isorelayer/isorelayer/internal/store"
)

type fakeSweeper struct {
	sweeps atomic.Int32
}

func (f *fakeSweeper) Sweep() int {
	f.sweeps.Add(1)
	return 3
}

type fakeMaintainedStore struct {
	gcRuns  atomic.Int32
	statsRd atomic.Int32
	gcErr   error
}

func (f *fakeMaintainedStore) RunGC() error {
	f.gcRuns.Add(1)
	return f.gcErr
}

func (f *fakeMaintainedStore) Stats() store.Stats {
	f.statsRd.Add(1)
	return store.Stats{Entries: 42, SizeBytes: 4096}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestMaintenanceService_Interface(t *testing.T) {
	var _ suture.Service = (*MaintenanceService)(nil)
}

func TestNewMaintenanceService_Defaults(t *testing.T) {
	svc := NewMaintenanceService(&fakeSweeper{}, &fakeMaintainedStore{}, MaintenanceConfig{})

	if svc.config.SweepInterval != time.Second {
		t.Errorf("expected default sweep interval 1s, got %v", svc.config.SweepInterval)
	}
	if svc.config.GCInterval != 5*time.Minute {
		t.Errorf("expected default GC interval 5m, got %v", svc.config.GCInterval)
	}
	if svc.config.StatsInterval != 15*time.Second {
		t.Errorf("expected default stats interval 15s, got %v", svc.config.StatsInterval)
	}
}

func TestMaintenanceService_Ticks(t *testing.T) {
	sweeper := &fakeSweeper{}
	st := &fakeMaintainedStore{}
	svc := NewMaintenanceService(sweeper, st, MaintenanceConfig{
		SweepInterval: 10 * time.Millisecond,
		GCInterval:    20 * time.Millisecond,
		StatsInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	if !waitFor(t, time.Second, func() bool {
		return sweeper.sweeps.Load() >= 2 && st.gcRuns.Load() >= 1 && st.statsRd.Load() >= 1
	}) {
		t.Errorf("ticks did not fire: sweeps=%d gc=%d stats=%d",
			sweeper.sweeps.Load(), st.gcRuns.Load(), st.statsRd.Load())
	}

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Serve did not return after cancel")
	}
}

func TestMaintenanceService_SurvivesGCFailure(t *testing.T) {
	sweeper := &fakeSweeper{}
	st := &fakeMaintainedStore{gcErr: errors.New("value log busy")}
	svc := NewMaintenanceService(sweeper, st, MaintenanceConfig{
		SweepInterval: 10 * time.Millisecond,
		GCInterval:    10 * time.Millisecond,
		StatsInterval: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	// GC keeps failing; the service must keep ticking anyway.
	if !waitFor(t, time.Second, func() bool { return st.gcRuns.Load() >= 3 }) {
		t.Errorf("expected repeated GC attempts despite failures, got %d", st.gcRuns.Load())
	}

	cancel()
	<-errCh
}

func TestMaintenanceService_String(t *testing.T) {
	svc := NewMaintenanceService(&fakeSweeper{}, &fakeMaintainedStore{}, MaintenanceConfig{})
	if svc.String() != "maintenance" {
		t.Errorf("expected 'maintenance', got %q", svc.String())
	}
}
