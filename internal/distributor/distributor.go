// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package distributor batches admitted events off the pipeline queue and
// fans each batch out to every registered sink.
//
// A batch flushes when it reaches the configured size or when its oldest
// event reaches the maximum latency, whichever comes first. Sinks receive
// the batch concurrently, each under its own timeout; a failing sink is
// logged and counted but never delays ingest or the other sinks beyond
// that timeout. Per-sink batch order is preserved because a flush waits
// for all deliveries before the next one starts.
package distributor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/event"
	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
)

// Batch is one flush unit handed to every sink. Sinks must not retain it
// past their Deliver call.
type Batch struct {
	ID        string
	Events    []*event.Inbound
	CreatedAt time.Time
}

// Sink receives flushed batches. Deliver must honor ctx and return the
// delivery outcome; it is called from a dedicated goroutine per flush.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batch *Batch) error
}

// Config holds distributor settings.
type Config struct {
	// BatchSize flushes the buffer when it reaches this count.
	BatchSize int

	// MaxLatency flushes when the oldest buffered event is this old.
	MaxLatency time.Duration

	// SinkTimeout bounds each sink's delivery attempt.
	SinkTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		MaxLatency:  500 * time.Millisecond,
		SinkTimeout: 10 * time.Second,
	}
}

// Distributor consumes the admitted-event queue.
type Distributor struct {
	queue  <-chan *event.Inbound
	sinks  []Sink
	cfg    Config
	logger zerolog.Logger
}

// New creates a distributor over queue delivering to sinks.
func New(queue <-chan *event.Inbound, cfg Config, sinks ...Sink) *Distributor {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = def.MaxLatency
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	return &Distributor{
		queue:  queue,
		sinks:  sinks,
		cfg:    cfg,
		logger: logging.WithComponent("distributor"),
	}
}

// Serve runs the batching loop until ctx is canceled, then flushes the
// partial batch before returning.
func (d *Distributor) Serve(ctx context.Context) error {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	d.logger.Info().
		Int("batch_size", d.cfg.BatchSize).
		Dur("max_latency", d.cfg.MaxLatency).
		Strs("sinks", names).
		Msg("Distributor started")

	// The timer is armed only while the buffer is non-empty, measuring
	// the age of the oldest buffered event.
	timer := time.NewTimer(d.cfg.MaxLatency)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var buf []*event.Inbound

	for {
		select {
		case <-ctx.Done():
			// Take what is already queued, then flush the remainder.
			for {
				select {
				case ev := <-d.queue:
					buf = append(buf, ev)
				default:
					d.flush(buf, "shutdown")
					d.logger.Info().Int("final_batch", len(buf)).Msg("Distributor stopped")
					return ctx.Err()
				}
			}

		case ev := <-d.queue:
			if len(buf) == 0 {
				timer.Reset(d.cfg.MaxLatency)
			}
			buf = append(buf, ev)
			metrics.UpdateQueueDepth(len(d.queue))
			if len(buf) >= d.cfg.BatchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				d.flush(buf, "size")
				buf = nil
			}

		case <-timer.C:
			d.flush(buf, "latency")
			buf = nil
		}
	}
}

// flush hands the buffered events to every sink concurrently and waits
// for all attempts.
func (d *Distributor) flush(events []*event.Inbound, trigger string) {
	if len(events) == 0 {
		return
	}

	batch := &Batch{
		ID:        uuid.New().String(),
		Events:    events,
		CreatedAt: time.Now(),
	}
	start := time.Now()

	var wg sync.WaitGroup
	for _, s := range d.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
			defer cancel()

			if err := s.Deliver(ctx, batch); err != nil {
				status := "failure"
				if errors.Is(err, ErrSinkUnavailable) {
					status = "rejected"
				}
				metrics.RecordSinkDelivery(s.Name(), status)
				d.logger.Error().
					Err(err).
					Str("sink", s.Name()).
					Str("batch_id", batch.ID).
					Int("events", len(batch.Events)).
					Msg("Sink delivery failed")
				return
			}
			metrics.RecordSinkDelivery(s.Name(), "success")
		}(s)
	}
	wg.Wait()

	metrics.RecordBatchFlush(trigger, len(batch.Events), time.Since(start))
	d.logger.Debug().
		Str("batch_id", batch.ID).
		Str("trigger", trigger).
		Int("events", len(batch.Events)).
		Msg("Batch flushed")
}
