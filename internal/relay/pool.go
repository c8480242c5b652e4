// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package relay maintains supervised connections to upstream relays and
// feeds admitted events into the shared pipeline queue.
//
// Each relay gets one goroutine owning the full connect/read/reconnect
// cycle (see Connection). The Pool tracks connections by normalized url,
// serves control-plane add/remove/status operations, and runs a health
// ticker that forces silent-but-connected relays through a reconnect.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/event"
	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
)

// Config holds relay pool settings.
type Config struct {
	// BootstrapRelays are connected when the pool starts serving.
	BootstrapRelays []string

	// Kinds restricts the live subscription filter; empty subscribes to
	// every kind.
	Kinds []int

	// MaxConnections caps tracked relays; adds beyond it fail with
	// ErrPoolFull.
	MaxConnections int

	// ReconnectBase and ReconnectCap bound the jittered exponential
	// backoff between connection attempts.
	ReconnectBase time.Duration
	ReconnectCap  time.Duration

	// HealthInterval is how often the pool scans for silent relays.
	HealthInterval time.Duration

	// SilenceThreshold is how long a connected relay may go without a
	// received event before it is forced to reconnect.
	SilenceThreshold time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:   64,
		ReconnectBase:    time.Second,
		ReconnectCap:     2 * time.Minute,
		HealthInterval:   30 * time.Second,
		SilenceThreshold: 5 * time.Minute,
	}
}

// RelayInfo is one relay's status snapshot for the control plane.
type RelayInfo struct {
	URL                 string    `json:"url"`
	Status              string    `json:"status"`
	LastSuccess         time.Time `json:"last_success"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
}

// Pool owns the relay connection set.
type Pool struct {
	cfg      Config
	admitter Admitter
	queue    chan<- *event.Inbound
	dial     connectFunc

	mu     sync.Mutex
	conns  map[string]*Connection
	runCtx context.Context

	logger zerolog.Logger
}

// NewPool creates a pool feeding admitted events into queue. It does not
// connect anything until Serve runs.
func NewPool(cfg Config, admitter Admitter, queue chan<- *event.Inbound) *Pool {
	def := DefaultConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = def.ReconnectBase
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = def.ReconnectCap
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = def.SilenceThreshold
	}

	return &Pool{
		cfg:      cfg,
		admitter: admitter,
		queue:    queue,
		dial:     dialNostr,
		conns:    make(map[string]*Connection),
		logger:   logging.WithComponent("relay-pool"),
	}
}

// Serve connects the bootstrap relays and runs the health loop until ctx
// is canceled, then tears every connection down before returning.
func (p *Pool) Serve(ctx context.Context) error {
	p.mu.Lock()
	p.runCtx = ctx
	p.mu.Unlock()

	for _, u := range p.cfg.BootstrapRelays {
		if err := p.ConnectAndSubscribe(u); err != nil {
			p.logger.Error().Err(err).Str("url", u).Msg("Bootstrap relay rejected")
		}
	}

	p.logger.Info().
		Int("bootstrap_relays", len(p.cfg.BootstrapRelays)).
		Int("max_connections", p.cfg.MaxConnections).
		Dur("health_interval", p.cfg.HealthInterval).
		Msg("Relay pool started")

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

// ConnectAndSubscribe adds a relay and dispatches its connection attempt.
// Adding an already-tracked relay is a no-op success.
func (p *Pool) ConnectAndSubscribe(rawURL string) error {
	url, err := normalizeURL(rawURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.runCtx == nil {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	if _, ok := p.conns[url]; ok {
		p.mu.Unlock()
		return nil
	}
	if len(p.conns) >= p.cfg.MaxConnections {
		p.mu.Unlock()
		return ErrPoolFull
	}

	ctx, cancel := context.WithCancel(p.runCtx)
	c := newConnection(url, p.cfg.Kinds, p.dial, p.admitter, p.queue,
		p.cfg.ReconnectBase, p.cfg.ReconnectCap, p.logger)
	c.cancel = cancel
	p.conns[url] = c
	p.mu.Unlock()

	go c.run(ctx)
	p.logger.Info().Str("url", url).Msg("Relay added")
	p.refreshStateGauges()
	return nil
}

// DisconnectRelay removes a relay, awaiting its goroutine's termination.
func (p *Pool) DisconnectRelay(rawURL string) error {
	url, err := normalizeURL(rawURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	c, ok := p.conns[url]
	if !ok {
		p.mu.Unlock()
		return ErrRelayNotFound
	}
	delete(p.conns, url)
	p.mu.Unlock()

	c.cancel()
	<-c.done

	p.logger.Info().Str("url", url).Msg("Relay removed")
	p.refreshStateGauges()
	return nil
}

// ConnectionStatuses returns the state of every tracked relay.
func (p *Pool) ConnectionStatuses() map[string]State {
	conns := p.snapshot()
	statuses := make(map[string]State, len(conns))
	for _, c := range conns {
		statuses[c.url] = c.State()
	}
	return statuses
}

// ActiveConnections counts relays currently in StateConnected.
func (p *Pool) ActiveConnections() int {
	active := 0
	for _, c := range p.snapshot() {
		if c.State() == StateConnected {
			active++
		}
	}
	return active
}

// ListRelays returns the tracked relay urls, sorted.
func (p *Pool) ListRelays() []string {
	conns := p.snapshot()
	urls := make([]string, 0, len(conns))
	for _, c := range conns {
		urls = append(urls, c.url)
	}
	sort.Strings(urls)
	return urls
}

// RelayInfos returns per-relay status snapshots, sorted by url.
func (p *Pool) RelayInfos() []RelayInfo {
	conns := p.snapshot()
	infos := make([]RelayInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, RelayInfo{
			URL:                 c.url,
			Status:              c.State().String(),
			LastSuccess:         c.LastSuccess(),
			ConsecutiveFailures: c.Failures(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos
}

func (p *Pool) snapshot() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	return conns
}

func (p *Pool) serving() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runCtx != nil
}

// checkHealth forces a reconnect on every connected relay whose last
// success is older than the silence threshold. The force signal is a
// message to the connection's own goroutine, which stays the single
// writer of its state.
func (p *Pool) checkHealth() {
	cutoff := time.Now().Add(-p.cfg.SilenceThreshold)
	for _, c := range p.snapshot() {
		if c.State() == StateConnected && c.LastSuccess().Before(cutoff) {
			p.logger.Warn().
				Str("relay", c.url).
				Time("last_success", c.LastSuccess()).
				Msg("Relay silent past threshold, forcing reconnect")
			c.requestReconnect()
		}
	}
	p.refreshStateGauges()
}

func (p *Pool) refreshStateGauges() {
	counts := make(map[State]int, 4)
	for _, c := range p.snapshot() {
		counts[c.State()]++
	}
	for s := StateDisconnected; s <= StateReconnecting; s++ {
		metrics.UpdateRelayConnections(s.String(), counts[s])
	}
}

// shutdown cancels every connection and awaits them.
func (p *Pool) shutdown() {
	p.mu.Lock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*Connection)
	p.runCtx = nil
	p.mu.Unlock()

	for _, c := range conns {
		c.cancel()
	}
	for _, c := range conns {
		<-c.done
	}

	p.refreshStateGauges()
	p.logger.Info().Int("connections", len(conns)).Msg("Relay pool stopped")
}

var (
	// ErrRelayNotFound is returned when removing a relay the pool does
	// not track.
	ErrRelayNotFound = errors.New("relay not tracked by pool")

	// ErrPoolFull is returned when adding a relay past MaxConnections.
	ErrPoolFull = errors.New("relay pool at connection capacity")

	// ErrPoolStopped is returned for adds while the pool is not serving.
	ErrPoolStopped = errors.New("relay pool is not running")

	// ErrInvalidURL is returned for urls that do not normalize to a
	// websocket relay address.
	ErrInvalidURL = errors.New("invalid relay url")
)
