// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package cache

import (
	"sync"
	"testing"
)

func TestRecencyCache_IsDuplicate(t *testing.T) {
	c := NewRecencyCache(100)

	if c.IsDuplicate("a") {
		t.Error("first sighting of 'a' reported as duplicate")
	}
	if !c.IsDuplicate("a") {
		t.Error("second sighting of 'a' not reported as duplicate")
	}
	if c.IsDuplicate("b") {
		t.Error("first sighting of 'b' reported as duplicate")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestRecencyCache_CapacityEviction(t *testing.T) {
	c := NewRecencyCache(3)

	for _, id := range []string{"a", "b", "c", "d"} {
		c.IsDuplicate(id)
	}

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	// "a" was the least recently seen and must be gone.
	if c.Contains("a") {
		t.Error("expected 'a' to be evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !c.Contains(id) {
			t.Errorf("expected %q to survive eviction", id)
		}
	}
}

func TestRecencyCache_RecencyOrder(t *testing.T) {
	c := NewRecencyCache(3)

	c.IsDuplicate("a")
	c.IsDuplicate("b")
	c.IsDuplicate("c")

	// Touch "a" so "b" becomes the eviction candidate.
	c.IsDuplicate("a")
	c.IsDuplicate("d")

	if c.Contains("b") {
		t.Error("expected 'b' to be evicted after 'a' was touched")
	}
	if !c.Contains("a") {
		t.Error("expected touched 'a' to survive")
	}
}

func TestRecencyCache_ContainsDoesNotPromote(t *testing.T) {
	c := NewRecencyCache(3)

	c.IsDuplicate("a")
	c.IsDuplicate("b")
	c.IsDuplicate("c")

	// A read-only peek must not refresh "a".
	c.Contains("a")
	c.IsDuplicate("d")

	if c.Contains("a") {
		t.Error("Contains promoted 'a'; expected it to be evicted")
	}
}

func TestRecencyCache_Add(t *testing.T) {
	c := NewRecencyCache(10)

	c.Add("a")
	if !c.Contains("a") {
		t.Error("Add did not record 'a'")
	}
	if !c.IsDuplicate("a") {
		t.Error("id recorded via Add not reported as duplicate")
	}
}

func TestRecencyCache_DefaultCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		c := NewRecencyCache(capacity)
		if c.Cap() <= 0 {
			t.Errorf("NewRecencyCache(%d).Cap() = %d, want > 0", capacity, c.Cap())
		}
	}
}

func TestRecencyCache_ConcurrentSameID(t *testing.T) {
	c := NewRecencyCache(100)

	workers := 64
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.IsDuplicate("contested")
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one caller wins the check-and-record race.
	fresh := 0
	for dup := range results {
		if !dup {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("%d callers saw a fresh id, want exactly 1", fresh)
	}
}

func TestRecencyCache_ConcurrentDistinctIDs(t *testing.T) {
	c := NewRecencyCache(100000)

	var wg sync.WaitGroup
	workers := 8
	perWorker := 1000

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := hexID(w*perWorker + i)
				if c.IsDuplicate(id) {
					t.Errorf("distinct id %s reported as duplicate", id)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() != workers*perWorker {
		t.Errorf("Len() = %d, want %d", c.Len(), workers*perWorker)
	}
}

func BenchmarkRecencyCache_IsDuplicate(b *testing.B) {
	c := NewRecencyCache(100000)
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = hexID(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.IsDuplicate(ids[i%len(ids)])
	}
}
