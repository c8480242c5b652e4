// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package dedup decides, once per event id, whether an event is a first
// sighting or a duplicate. Decisions run through four tiers ordered by
// cost: a seconds-horizon hot set, a bloom filter, an LRU recency cache,
// and the durable BadgerDB store. The common case (a genuinely new id)
// never touches storage.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/cache"
	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
	"github.com/isorelayer/isorelayer/internal/store"
)

// Decision says whether an event id was seen for the first time.
type Decision int

const (
	Admitted Decision = iota
	Duplicate
)

func (d Decision) String() string {
	if d == Admitted {
		return "admitted"
	}
	return "duplicate"
}

// Tier names the layer that identified a duplicate.
type Tier string

const (
	TierHot   Tier = "hot"
	TierCache Tier = "cache"
	TierStore Tier = "store"
)

// Result is the outcome of an Admit call.
type Result struct {
	Decision Decision
	Tier     Tier // set when Decision is Duplicate
}

// Stats is a point-in-time snapshot of tier occupancy plus the
// cumulative admit counters. Built from relaxed reads; it never blocks
// Admit.
type Stats struct {
	HotSetSize         int   `json:"hot_set_size"`
	RecencyCacheSize   int   `json:"recency_cache_size"`
	FilterSize         int64 `json:"filter_size"`
	DurableApproxCount int64 `json:"durable_approx_count"`
	PendingWrites      int   `json:"pending_writes"`
	AdmittedTotal      int64 `json:"admitted_total"`
	DuplicateTotal     int64 `json:"duplicate_total"`
}

// Store is the durable tier as the engine sees it.
type Store interface {
	Has(id string) (bool, error)
	PutBatch(entries []store.Entry) error
	ApproximateCount() int64
	IterateIDs(fn func(id string) error) error
}

// Config sizes the deduplication tiers.
type Config struct {
	// HotSetHorizon is how long an id stays authoritative in the hot set.
	HotSetHorizon time.Duration

	// BloomCapacity is the expected unique id count used to size the filter.
	BloomCapacity int

	// BloomFPRate is the target false positive rate at capacity.
	BloomFPRate float64

	// CacheSize caps the recency cache entry count.
	CacheSize int

	// WriteQueueSize bounds the async durable write queue. A full queue
	// blocks admits, pushing backpressure into the relay read loops.
	WriteQueueSize int

	// WriteBatchSize flushes the writer when this many ids have buffered.
	WriteBatchSize int

	// WriteInterval flushes a partial writer buffer after this long.
	WriteInterval time.Duration
}

// DefaultConfig returns tier sizing for a mid-size relay set.
func DefaultConfig() Config {
	return Config{
		HotSetHorizon:  2 * time.Second,
		BloomCapacity:  1000000,
		BloomFPRate:    0.001,
		CacheSize:      100000,
		WriteQueueSize: 4096,
		WriteBatchSize: 256,
		WriteInterval:  time.Second,
	}
}

// Engine answers "have I seen this event id before?". All methods are
// safe for concurrent use; for racing calls with the same id, exactly
// one caller observes Admitted.
type Engine struct {
	hot    *cache.HotSet
	filter *cache.BloomFilter
	recent *cache.RecencyCache
	store  Store

	// pending holds ids handed to the writer but not yet durably
	// committed, so cache eviction cannot reopen the admit window.
	pending *pendingSet
	writes  chan writeRequest

	admitted   atomic.Int64
	duplicates atomic.Int64

	cfg    Config
	logger zerolog.Logger
}

type writeRequest struct {
	id      string
	payload []byte
}

// NewEngine builds the tiers over an opened store and rebuilds the
// filter from the stored ids so admissions before a restart keep
// failing the fast path.
func NewEngine(st Store, cfg Config) (*Engine, error) {
	if st == nil {
		return nil, errors.New("durable store required")
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 4096
	}
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = 256
	}
	if cfg.WriteInterval <= 0 {
		cfg.WriteInterval = time.Second
	}

	e := &Engine{
		hot:     cache.NewHotSet(cfg.HotSetHorizon),
		filter:  cache.NewBloomFilter(cfg.BloomCapacity, cfg.BloomFPRate),
		recent:  cache.NewRecencyCache(cfg.CacheSize),
		store:   st,
		pending: newPendingSet(),
		writes:  make(chan writeRequest, cfg.WriteQueueSize),
		cfg:     cfg,
		logger:  logging.WithComponent("dedup"),
	}

	var warmed int64
	if err := st.IterateIDs(func(id string) error {
		e.filter.Add(id)
		warmed++
		return nil
	}); err != nil {
		return nil, fmt.Errorf("warm filter from store: %w", err)
	}
	if warmed > int64(e.filter.Capacity()) {
		e.logger.Warn().
			Int64("stored_ids", warmed).
			Int("filter_capacity", e.filter.Capacity()).
			Msg("Stored ids exceed filter capacity, false positive rate degraded")
	}

	e.logger.Info().
		Int64("warmed_ids", warmed).
		Dur("hot_set_horizon", e.hot.Horizon()).
		Int("cache_size", e.recent.Cap()).
		Msg("Deduplication engine ready")
	return e, nil
}

// Admit decides whether the id is a first sighting. The payload rides
// along into the durable store on admission. A non-nil error means the
// durable tier misbehaved; the Result is still valid and conservative.
//
// ctx only bounds the enqueue of the durable write (relevant during
// shutdown); no other step blocks.
func (e *Engine) Admit(ctx context.Context, id string, payload []byte) (Result, error) {
	if id == "" {
		return Result{}, ErrEmptyID
	}

	start := time.Now()
	defer func() {
		metrics.ObserveAdmit(time.Since(start))
	}()

	// Tier 1: the hot set decides racing sightings inside the horizon.
	if !e.hot.Insert(id) {
		e.recordDuplicate(TierHot)
		return Result{Decision: Duplicate, Tier: TierHot}, nil
	}

	// Tier 2: a negative filter answer proves the id is new. The cache
	// check-and-record is the commit point for the admission.
	if !e.filter.Test(id) {
		if e.recent.IsDuplicate(id) {
			e.recordDuplicate(TierCache)
			return Result{Decision: Duplicate, Tier: TierCache}, nil
		}
		e.filter.Add(id)
		e.enqueueWrite(ctx, id, payload)
		e.recordAdmitted()
		return Result{Decision: Admitted}, nil
	}

	// Tier 3: possibly seen before. A cache hit settles it cheaply.
	if e.recent.Contains(id) {
		e.recordDuplicate(TierCache)
		return Result{Decision: Duplicate, Tier: TierCache}, nil
	}

	// Enqueued-but-uncommitted ids count as stored: the cache may have
	// evicted them while the writer still holds the only record.
	if e.pending.contains(id) {
		e.recordDuplicate(TierStore)
		return Result{Decision: Duplicate, Tier: TierStore}, nil
	}

	// Tier 4: the durable store settles filter positives.
	found, err := e.store.Has(id)
	if err != nil {
		// Conservative: never double-forward on storage trouble.
		e.recordDuplicate(TierStore)
		return Result{Decision: Duplicate, Tier: TierStore}, fmt.Errorf("durable read: %w", err)
	}
	if found {
		// Re-warm the cache so repeat duplicates stay off the slow path.
		e.recent.Add(id)
		e.recordDuplicate(TierStore)
		return Result{Decision: Duplicate, Tier: TierStore}, nil
	}

	// Filter false positive: the id is new after all. Same commit gate
	// as the fast path.
	if e.recent.IsDuplicate(id) {
		e.recordDuplicate(TierCache)
		return Result{Decision: Duplicate, Tier: TierCache}, nil
	}
	e.filter.Add(id)
	e.enqueueWrite(ctx, id, payload)
	e.recordAdmitted()
	return Result{Decision: Admitted}, nil
}

func (e *Engine) recordAdmitted() {
	e.admitted.Add(1)
	metrics.RecordAdmitted()
}

func (e *Engine) recordDuplicate(tier Tier) {
	e.duplicates.Add(1)
	metrics.RecordDuplicate(string(tier))
}

// enqueueWrite hands the id to the async writer. The id enters the
// pending set before the send so no sighting can slip between them.
func (e *Engine) enqueueWrite(ctx context.Context, id string, payload []byte) {
	e.pending.add(id)
	select {
	case e.writes <- writeRequest{id: id, payload: payload}:
	case <-ctx.Done():
		// Shutdown while the queue is full. The id stays pending so this
		// process keeps rejecting it; durability is lost to the crash
		// window that async writing already accepts.
	}
}

// Stats returns a snapshot of tier occupancy and cumulative counts.
func (e *Engine) Stats() Stats {
	return Stats{
		HotSetSize:         e.hot.Len(),
		RecencyCacheSize:   e.recent.Len(),
		FilterSize:         e.filter.Count(),
		DurableApproxCount: e.store.ApproximateCount(),
		PendingWrites:      e.pending.len(),
		AdmittedTotal:      e.admitted.Load(),
		DuplicateTotal:     e.duplicates.Load(),
	}
}

// Sweep drops expired hot-set entries and refreshes the tier gauges.
// Called periodically by the maintenance loop.
func (e *Engine) Sweep() int {
	removed := e.hot.Sweep()
	metrics.UpdateDedupSizes(e.hot.Len(), e.recent.Len(), e.filter.FillRatio())
	return removed
}

// pendingSet tracks ids between enqueue and durable commit.
type pendingSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{ids: make(map[string]struct{})}
}

func (p *pendingSet) add(id string) {
	p.mu.Lock()
	p.ids[id] = struct{}{}
	p.mu.Unlock()
}

func (p *pendingSet) contains(id string) bool {
	p.mu.Lock()
	_, ok := p.ids[id]
	p.mu.Unlock()
	return ok
}

func (p *pendingSet) remove(ids []string) {
	p.mu.Lock()
	for _, id := range ids {
		delete(p.ids, id)
	}
	p.mu.Unlock()
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	n := len(p.ids)
	p.mu.Unlock()
	return n
}

// ErrEmptyID is returned when Admit is called with an empty id.
var ErrEmptyID = errors.New("event id cannot be empty")
