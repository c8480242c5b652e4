// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package dedup

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
	"github.com/isorelayer/isorelayer/internal/store"
)

// drainTimeout bounds the final flush after shutdown begins.
const drainTimeout = 5 * time.Second

// Writer owns all durable writes. Admits enqueue; one goroutine drains
// the queue into BadgerDB write batches so the hot path never touches
// storage.
type Writer struct {
	engine *Engine
	store  Store

	batchSize int
	interval  time.Duration

	// Retry schedule for failed batch commits.
	retryInitial time.Duration
	retryMax     time.Duration
	retryBudget  time.Duration

	logger zerolog.Logger
}

// NewWriter creates the async durable writer for an engine.
func NewWriter(e *Engine) *Writer {
	return &Writer{
		engine:       e,
		store:        e.store,
		batchSize:    e.cfg.WriteBatchSize,
		interval:     e.cfg.WriteInterval,
		retryInitial: 100 * time.Millisecond,
		retryMax:     5 * time.Second,
		retryBudget:  30 * time.Second,
		logger:       logging.WithComponent("dedup-writer"),
	}
}

// Run drains the write queue until ctx is canceled, then commits what
// remains. Flushes happen at batch size or on the interval tick,
// whichever comes first.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info().
		Int("batch_size", w.batchSize).
		Dur("interval", w.interval).
		Msg("Durable writer started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]store.Entry, 0, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.drain(batch)
			return ctx.Err()
		case req := <-w.engine.writes:
			batch = append(batch, store.Entry{ID: req.id, Payload: req.payload})
			if len(batch) >= w.batchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = w.flush(ctx, batch)
			}
		}
	}
}

// flush commits the batch with exponential backoff and returns the
// reusable zero-length slice. Ids leave the pending set only after a
// durable commit; on an abandoned write they stay pending so this
// process keeps rejecting them.
func (w *Writer) flush(ctx context.Context, batch []store.Entry) []store.Entry {
	if len(batch) == 0 {
		return batch
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.retryInitial
	bo.MaxInterval = w.retryMax
	bo.MaxElapsedTime = w.retryBudget

	op := func() error {
		return w.store.PutBatch(batch)
	}
	notify := func(err error, next time.Duration) {
		metrics.RecordStoreWriteRetry()
		w.logger.Warn().
			Err(err).
			Int("events", len(batch)).
			Dur("retry_in", next).
			Msg("Durable write failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		metrics.RecordStoreWrite(false)
		w.logger.Error().
			Err(err).
			Int("events", len(batch)).
			Msg("Durable write abandoned")
		return batch[:0]
	}

	metrics.RecordStoreWrite(true)
	w.engine.pending.remove(entryIDs(batch))
	return batch[:0]
}

// drain empties the queue without blocking and commits the remainder.
// Runs after cancellation, so the final flush gets its own deadline.
func (w *Writer) drain(batch []store.Entry) {
	for {
		select {
		case req := <-w.engine.writes:
			batch = append(batch, store.Entry{ID: req.id, Payload: req.payload})
		default:
			if len(batch) == 0 {
				w.logger.Info().Msg("Durable writer stopped")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			w.flush(ctx, batch)
			w.logger.Info().Int("events", len(batch)).Msg("Durable writer drained")
			return
		}
	}
}

func entryIDs(entries []store.Entry) []string {
	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}
	return ids
}
