// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package distributor

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
)

// ErrSinkUnavailable marks deliveries rejected by an open circuit, so a
// dead target costs a map lookup instead of a full timeout.
var ErrSinkUnavailable = errors.New("sink circuit open")

// BreakerConfig holds circuit breaker settings for a sink.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic reset period for counts while closed.
	Interval time.Duration

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the consecutive failures before opening.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerSink wraps a sink with a circuit breaker.
type BreakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker[any]
}

// WithBreaker wraps sink so consecutive delivery failures open the
// circuit and later deliveries fast-fail with ErrSinkUnavailable until a
// half-open probe succeeds.
func WithBreaker(sink Sink, cfg BreakerConfig) *BreakerSink {
	def := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	logger := logging.WithComponent("distributor")
	settings := gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetSinkBreakerOpen(name, to == gobreaker.StateOpen)
			logger.Warn().
				Str("sink", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Sink circuit state changed")
		},
	}

	return &BreakerSink{
		sink: sink,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Name returns the wrapped sink's name.
func (b *BreakerSink) Name() string { return b.sink.Name() }

// State returns the circuit state for the control plane.
func (b *BreakerSink) State() string { return b.cb.State().String() }

// Deliver forwards the batch through the circuit breaker.
func (b *BreakerSink) Deliver(ctx context.Context, batch *Batch) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.sink.Deliver(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", b.sink.Name(), ErrSinkUnavailable)
		}
		return err
	}
	return nil
}
