// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package cache provides the in-memory deduplication tiers: a sharded
// short-horizon hot set, a capacity-bounded recency cache, and a bloom
// filter. The tiers are composed by the dedup engine; each structure is
// internally synchronized so admission never takes a coarse cross-tier lock.
package cache

import (
	"hash/fnv"
	"math"
	"math/bits"
	"sync"
)

// BloomFilter is a fixed-size probabilistic membership structure over event
// ids. Its one-sided error is what admission relies on: Test returning false
// means the id was definitely never added, so the fast path can skip the
// durable store entirely. Test returning true may be a false positive and
// must be verified against an authoritative tier.
//
// The filter never shrinks and nothing is ever removed; past its sized
// capacity the false-positive rate degrades, never the "definitely absent"
// answer.
type BloomFilter struct {
	mu       sync.RWMutex
	words    []uint64
	nbits    uint64
	k        int
	adds     int64
	capacity int
}

// NewBloomFilter sizes a filter for the expected number of distinct ids and
// a target false-positive rate, using the standard m = -n*ln(p)/ln(2)^2 and
// k = (m/n)*ln(2) formulas. The hash count is capped at 10.
func NewBloomFilter(capacity int, fpRate float64) *BloomFilter {
	if capacity <= 0 {
		capacity = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.001
	}

	const ln2 = 0.6931471805599453

	m := int(-float64(capacity) * math.Log(fpRate) / (ln2 * ln2))
	if m < 64 {
		m = 64
	}

	k := int(float64(m) / float64(capacity) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64

	return &BloomFilter{
		words:    make([]uint64, words),
		nbits:    uint64(words) * 64,
		k:        k,
		capacity: capacity,
	}
}

// Test reports whether id may have been added. A false return is
// authoritative: the id was never added.
func (f *BloomFilter) Test(id string) bool {
	h1, h2 := hashPair(id)

	f.mu.RLock()
	defer f.mu.RUnlock()

	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.nbits
		if f.words[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Add sets the id's bits. Re-adding an id is harmless.
func (f *BloomFilter) Add(id string) {
	h1, h2 := hashPair(id)

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.nbits
		f.words[idx/64] |= 1 << (idx % 64)
	}
	f.adds++
}

// Count returns the number of Add calls, an upper bound on the distinct ids
// recorded.
func (f *BloomFilter) Count() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.adds
}

// Capacity returns the distinct-id count the filter was sized for.
func (f *BloomFilter) Capacity() int {
	return f.capacity
}

// FillRatio returns the fraction of set bits, a saturation indicator.
func (f *BloomFilter) FillRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	set := 0
	for _, w := range f.words {
		set += bits.OnesCount64(w)
	}
	return float64(set) / float64(f.nbits)
}

// hashPair derives the two base hashes for double hashing: FNV-1a of the id
// and FNV-1 of the id plus a salt byte. Bit index i is h1 + i*h2 mod nbits.
func hashPair(id string) (uint64, uint64) {
	a := fnv.New64a()
	a.Write([]byte(id))
	b := fnv.New64()
	b.Write([]byte(id))
	b.Write([]byte{0xff})
	return a.Sum64(), b.Sum64()
}
