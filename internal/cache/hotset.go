// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// hotSetShards is the shard count; must be a power of two.
const hotSetShards = 16

// HotSet is the first deduplication tier: a sharded, time-windowed set of
// ids seen within the last few seconds. It exists to catch the same event
// arriving from several relays nearly simultaneously before the heavier
// tiers are consulted.
//
// Shards are selected by xxhash of the id, so concurrent admissions of
// different ids rarely contend; admissions of the same id always land on the
// same shard, making Insert an atomic insert-if-absent.
//
// Memory is bounded by ingest rate times the horizon: entries expire after
// the horizon, lazily on re-insert and eagerly via periodic Sweep calls.
type HotSet struct {
	horizon time.Duration
	shards  [hotSetShards]hotShard
}

type hotShard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewHotSet creates a hot set with the given horizon.
func NewHotSet(horizon time.Duration) *HotSet {
	if horizon <= 0 {
		horizon = 2 * time.Second
	}

	h := &HotSet{horizon: horizon}
	for i := range h.shards {
		h.shards[i].entries = make(map[string]time.Time)
	}
	return h
}

// Insert records id as seen now and reports whether it was absent. A false
// return means the id was already present within the horizon; of any set of
// racing callers for one id, exactly one gets true. A true return is not
// proof the id is new beyond the horizon; the later tiers decide that.
func (h *HotSet) Insert(id string) bool {
	now := time.Now()
	s := h.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.entries[id]; ok && now.Sub(at) < h.horizon {
		return false
	}
	s.entries[id] = now
	return true
}

// Contains reports whether id was seen within the horizon.
func (h *HotSet) Contains(id string) bool {
	now := time.Now()
	s := h.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[id]
	return ok && now.Sub(at) < h.horizon
}

// Len returns the number of tracked ids, including any not yet swept.
func (h *HotSet) Len() int {
	n := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Horizon returns the configured time window.
func (h *HotSet) Horizon() time.Duration {
	return h.horizon
}

// Sweep drops entries older than the horizon and returns how many were
// removed. Called periodically by the engine's maintenance loop.
func (h *HotSet) Sweep() int {
	now := time.Now()
	removed := 0

	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		for id, at := range s.entries {
			if now.Sub(at) >= h.horizon {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (h *HotSet) shard(id string) *hotShard {
	return &h.shards[xxhash.Sum64String(id)&(hotSetShards-1)]
}
