// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/dedup"
	"github.com/isorelayer/isorelayer/internal/event"
	"github.com/isorelayer/isorelayer/internal/metrics"
)

// State is the lifecycle phase of one relay connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Admitter decides whether an event id has been seen before.
type Admitter interface {
	Admit(ctx context.Context, id string, payload []byte) (dedup.Result, error)
}

// Connection manages one relay subscription: dial, read, reconnect with
// jittered exponential backoff, forever. All mutable fields are written
// only by the connection's own goroutine; status is published through
// atomics so the pool and the control plane read without locks.
type Connection struct {
	url   string
	kinds []int

	dial     connectFunc
	admitter Admitter
	queue    chan<- *event.Inbound

	reconnectBase    time.Duration
	reconnectCeiling time.Duration

	state       atomic.Int32
	lastSuccess atomic.Int64 // unix nanoseconds, 0 = never
	failures    atomic.Int64 // consecutive failed dials

	force  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	logger zerolog.Logger
}

func newConnection(url string, kinds []int, dial connectFunc, admitter Admitter, queue chan<- *event.Inbound, base, ceiling time.Duration, logger zerolog.Logger) *Connection {
	return &Connection{
		url:              url,
		kinds:            kinds,
		dial:             dial,
		admitter:         admitter,
		queue:            queue,
		reconnectBase:    base,
		reconnectCeiling: ceiling,
		force:            make(chan struct{}, 1),
		done:             make(chan struct{}),
		logger:           logger.With().Str("relay", url).Logger(),
	}
}

// URL returns the normalized relay url this connection is keyed by.
func (c *Connection) URL() string { return c.url }

// State returns the current lifecycle phase.
func (c *Connection) State() State { return State(c.state.Load()) }

// LastSuccess returns the time of the last successful connect or event
// receipt; the zero time if neither has happened yet.
func (c *Connection) LastSuccess() time.Time {
	ns := c.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Failures returns the consecutive failed dial count.
func (c *Connection) Failures() int64 { return c.failures.Load() }

func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

func (c *Connection) touch() { c.lastSuccess.Store(time.Now().UnixNano()) }

// requestReconnect asks the connection to drop its current session and
// redial. Non-blocking; coalesces with an undelivered earlier request.
func (c *Connection) requestReconnect() {
	select {
	case c.force <- struct{}{}:
	default:
	}
}

// run is the connection's management loop. It returns only when ctx is
// canceled; every other failure reconnects.
func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectBase
	bo.MaxInterval = c.reconnectCeiling
	bo.MaxElapsedTime = 0 // reconnect forever

	for {
		c.setState(StateConnecting)
		sess, err := c.dial(ctx, c.url, c.kinds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.failures.Add(1)
			if !c.sleepBackoff(ctx, bo, err) {
				return
			}
			continue
		}

		c.failures.Store(0)
		c.touch()
		c.setState(StateConnected)
		c.logger.Info().Msg("Relay connected")
		connectedAt := time.Now()

		c.readLoop(ctx, sess)
		sess.close()
		if ctx.Err() != nil {
			return
		}

		// A session that outlived the backoff ceiling earns a fresh
		// schedule; flapping relays keep climbing toward the cap.
		if time.Since(connectedAt) > c.reconnectCeiling {
			bo.Reset()
		}
		if !c.sleepBackoff(ctx, bo, nil) {
			return
		}
	}
}

// sleepBackoff enters Reconnecting and waits out the next backoff
// interval. Returns false when ctx was canceled during the wait.
func (c *Connection) sleepBackoff(ctx context.Context, bo backoff.BackOff, cause error) bool {
	wait := bo.NextBackOff()
	ev := c.logger.Warn().Dur("retry_in", wait).Int64("consecutive_failures", c.failures.Load())
	if cause != nil {
		ev.Err(cause).Msg("Relay connect failed")
	} else {
		ev.Msg("Relay session ended")
	}

	c.setState(StateReconnecting)
	metrics.RecordRelayReconnect(c.url)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func (c *Connection) readLoop(ctx context.Context, sess session) {
	// A force signal raised against a previous session must not kill
	// this one.
	select {
	case <-c.force:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.force:
			c.logger.Warn().Msg("Reconnect forced by health check")
			return
		case in, ok := <-sess.events():
			if !ok {
				return
			}
			c.handle(ctx, in)
		}
	}
}

// handle validates, admits and forwards one received event. Runs inline
// in the read loop: a full pipeline queue suspends only this relay.
func (c *Connection) handle(ctx context.Context, in incoming) {
	metrics.RecordEventReceived(c.url)
	c.touch()

	if !event.ValidID(in.id) {
		metrics.RecordInvalid(c.url)
		c.logger.Debug().Str("event_id", in.id).Msg("Dropping event with malformed id")
		return
	}

	res, err := c.admitter.Admit(ctx, in.id, in.payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("event_id", in.id).Msg("Admission degraded")
	}
	if res.Decision != dedup.Admitted {
		return
	}

	ev := &event.Inbound{
		ID:       in.id,
		Payload:  in.payload,
		Relay:    c.url,
		Received: time.Now(),
	}
	select {
	case c.queue <- ev:
		metrics.UpdateQueueDepth(len(c.queue))
	case <-ctx.Done():
	}
}
