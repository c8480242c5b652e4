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
)

// fakeServer counts Serve calls and blocks until canceled unless an
// error is configured.
type fakeServer struct {
	serveCount atomic.Int32
	err        error
}

func (f *fakeServer) Serve(ctx context.Context) error {
	f.serveCount.Add(1)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeRunner struct {
	runCount atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runCount.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestPipelineServices_Interface(t *testing.T) {
	var _ suture.Service = (*RelayPoolService)(nil)
	var _ suture.Service = (*DistributorService)(nil)
	var _ suture.Service = (*HubService)(nil)
	var _ suture.Service = (*StoreWriterService)(nil)
}

func TestPipelineServices_Names(t *testing.T) {
	tests := []struct {
		svc  interface{ String() string }
		want string
	}{
		{NewRelayPoolService(&fakeServer{}), "relay-pool"},
		{NewDistributorService(&fakeServer{}), "distributor"},
		{NewHubService(&fakeServer{}), "websocket-hub"},
		{NewStoreWriterService(&fakeRunner{}), "store-writer"},
	}

	for _, tt := range tests {
		if got := tt.svc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPipelineServices_Delegate(t *testing.T) {
	t.Run("serve delegates and returns on cancel", func(t *testing.T) {
		target := &fakeServer{}
		svc := NewDistributorService(target)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}

		if target.serveCount.Load() != 1 {
			t.Errorf("expected 1 Serve call, got %d", target.serveCount.Load())
		}
	})

	t.Run("serve propagates component error", func(t *testing.T) {
		boom := errors.New("pool crashed")
		svc := NewRelayPoolService(&fakeServer{err: boom})

		if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
			t.Errorf("expected component error, got %v", err)
		}
	})

	t.Run("writer wrapper calls Run", func(t *testing.T) {
		target := &fakeRunner{}
		svc := NewStoreWriterService(target)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()
		<-errCh

		if target.runCount.Load() != 1 {
			t.Errorf("expected 1 Run call, got %d", target.runCount.Load())
		}
	})
}

func TestPipelineServices_RestartedBySupervisor(t *testing.T) {
	target := &fakeServer{err: errors.New("transient failure")}
	svc := NewHubService(target)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errCh := sup.ServeBackground(ctx)

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-errCh

	if target.serveCount.Load() < 2 {
		t.Errorf("expected supervisor to restart failing service, got %d starts", target.serveCount.Load())
	}
}
