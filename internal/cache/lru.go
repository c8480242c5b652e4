// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package cache

import (
	"sync"
)

// cacheEntry is a node in the recency list.
type cacheEntry struct {
	id   string
	prev *cacheEntry
	next *cacheEntry
}

// RecencyCache is the capacity-bounded LRU of recently admitted event ids.
// It serves the majority of duplicate checks from memory and acts as the
// admission commit point: IsDuplicate performs check-and-record under a
// single lock, so exactly one of any set of concurrent callers for the same
// id observes "not a duplicate".
//
// Eviction is capacity-driven only. Evicting an id does not forget it: the
// durable store still rejects it, just slower.
//
// A hashmap plus doubly-linked list with sentinel nodes gives O(1) lookup,
// record, and eviction.
type RecencyCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*cacheEntry

	// head.next is the most recently used, tail.prev the least.
	head *cacheEntry
	tail *cacheEntry
}

// NewRecencyCache creates a cache holding at most capacity ids.
func NewRecencyCache(capacity int) *RecencyCache {
	if capacity <= 0 {
		capacity = 100000
	}

	c := &RecencyCache{
		capacity: capacity,
		items:    make(map[string]*cacheEntry, capacity),
		head:     &cacheEntry{},
		tail:     &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// IsDuplicate checks whether id is present and records it if not, under one
// lock. Present ids are refreshed to most-recently-used and report true.
// Absent ids are recorded (evicting the least recently used beyond capacity)
// and report false.
func (c *RecencyCache) IsDuplicate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[id]; ok {
		c.moveToFront(e)
		return true
	}

	e := &cacheEntry{id: id}
	c.pushFront(e)
	c.items[id] = e

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
	return false
}

// Contains reports whether id is present without refreshing its recency.
func (c *RecencyCache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// Add records id as most recently used without a duplicate check.
func (c *RecencyCache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[id]; ok {
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{id: id}
	c.pushFront(e)
	c.items[id] = e

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Len returns the current number of cached ids.
func (c *RecencyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cap returns the configured capacity.
func (c *RecencyCache) Cap() int {
	return c.capacity
}

// List manipulation below must be called with c.mu held.

func (c *RecencyCache) pushFront(e *cacheEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *RecencyCache) moveToFront(e *cacheEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}

func (c *RecencyCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	oldest.prev.next = oldest.next
	oldest.next.prev = oldest.prev
	delete(c.items, oldest.id)
}
