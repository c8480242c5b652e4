// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package store persists admitted event ids in BadgerDB. The in-memory
// deduplication tiers lose state on restart; the store does not, so it is
// the backstop that keeps a restarted relayer from re-emitting history.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/isorelayer/isorelayer/internal/logging"
)

// Keys are namespaced so unrelated data can share the database later.
const keyPrefix = "relayer:event:"

// Config holds BadgerDB tuning for the durable id store.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Should be on a durable filesystem (not tmpfs).
	Path string

	// SyncWrites forces fsync after every write. The async batch writer
	// already amortizes write cost, so this defaults to false.
	SyncWrites bool

	// Retention is how long an id stays in the store before BadgerDB's
	// native TTL expires it. Zero keeps ids forever.
	Retention time.Duration

	// Compression enables Snappy compression for stored payloads.
	Compression bool

	// BadgerDB tuning options.
	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int
	BlockCacheSize   int64

	// GCRatio is the ratio for value log garbage collection.
	// Lower values reclaim more space but use more CPU.
	GCRatio float64

	// CloseTimeout is the maximum time to wait for graceful shutdown.
	// If the database doesn't close within this time, Close() returns
	// with an error instead of hanging.
	CloseTimeout time.Duration
}

// DefaultConfig returns tuning suitable for a single-node relayer.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		SyncWrites:       false,
		Retention:        0,
		Compression:      true,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 64 * 1024 * 1024,
		NumCompactors:    2,
		BlockCacheSize:   64 * 1024 * 1024,
		GCRatio:          0.5,
		CloseTimeout:     30 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "store path is required"}
	}
	if c.Retention < 0 {
		return &ConfigError{Field: "Retention", Message: "must not be negative"}
	}
	if c.MemTableSize < 1024*1024 {
		return &ConfigError{Field: "MemTableSize", Message: "must be at least 1MB"}
	}
	if c.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "ValueLogFileSize", Message: "must be at least 1MB"}
	}
	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be in (0, 1)"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "store config error: " + e.Field + ": " + e.Message
}

// Entry pairs an event id with its raw payload for batch writes.
type Entry struct {
	ID      string
	Payload []byte
}

// Stats contains store counters for monitoring.
type Stats struct {
	// Entries is the approximate number of stored ids. It is seeded by a
	// keys-only scan at open and maintained on writes; batch writes may
	// overcount re-admitted ids slightly.
	Entries int64

	// SizeBytes is the estimated on-disk size (LSM + value log).
	SizeBytes int64
}

// BadgerStore is the durable id store. All methods are safe for
// concurrent use.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	gcRatio   float64
	closeWait time.Duration

	approxCount atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the store at the configured path. A failure here
// is fatal to the caller: without the durable tier, restart safety is gone.
func Open(cfg Config) (*BadgerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors
	if cfg.BlockCacheSize > 0 {
		opts.BlockCacheSize = cfg.BlockCacheSize
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerStore{
		db:        db,
		retention: cfg.Retention,
		gcRatio:   cfg.GCRatio,
		closeWait: cfg.CloseTimeout,
	}

	n, err := s.countKeys()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count stored ids: %w", err)
	}
	s.approxCount.Store(n)

	logging.Info().
		Str("path", cfg.Path).
		Int64("entries", n).
		Dur("retention", cfg.Retention).
		Msg("Durable id store opened")
	return s, nil
}

// Has reports whether the id is present in the store.
func (s *BadgerStore) Has(id string) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, ErrStoreClosed
	}
	s.mu.RUnlock()

	if id == "" {
		return false, ErrEmptyID
	}

	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read id: %w", err)
	}
	return found, nil
}

// Put records a single id with its payload. Re-putting an existing id
// refreshes its payload and TTL without inflating the count.
func (s *BadgerStore) Put(id string, payload []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if id == "" {
		return ErrEmptyID
	}

	var fresh bool
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			fresh = true
		case err != nil:
			return fmt.Errorf("check id: %w", err)
		}
		return txn.SetEntry(s.newEntry(id, payload))
	})
	if err != nil {
		return fmt.Errorf("write id: %w", err)
	}

	if fresh {
		s.approxCount.Add(1)
	}
	return nil
}

// PutBatch records a batch of ids in one BadgerDB write batch. The batch
// path skips per-id existence checks, so the approximate count can drift
// upward if an id is re-admitted after a filter false positive.
func (s *BadgerStore) PutBatch(entries []Entry) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, en := range entries {
		if en.ID == "" {
			return ErrEmptyID
		}
		if err := wb.SetEntry(s.newEntry(en.ID, en.Payload)); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("batch flush: %w", err)
	}

	s.approxCount.Add(int64(len(entries)))
	return nil
}

// Get returns the stored payload for an id, or ErrNotFound.
func (s *BadgerStore) Get(id string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	if id == "" {
		return nil, ErrEmptyID
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// Delete removes an id from the store. Returns ErrNotFound if absent.
func (s *BadgerStore) Delete(id string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if id == "" {
		return ErrEmptyID
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete id: %w", err)
	}

	s.approxCount.Add(-1)
	return nil
}

// ApproximateCount returns the maintained id count.
func (s *BadgerStore) ApproximateCount() int64 {
	return s.approxCount.Load()
}

// Stats returns current store statistics.
func (s *BadgerStore) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return Stats{}
	}

	lsm, vlog := s.db.Size()
	return Stats{
		Entries:   s.approxCount.Load(),
		SizeBytes: lsm + vlog,
	}
}

// IterateIDs calls fn for every stored id in a keys-only scan. Used at
// startup to rebuild the in-memory filter so ids admitted before a
// restart stay duplicates. Iteration stops on the first fn error.
func (s *BadgerStore) IterateIDs(fn func(id string) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			if err := fn(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC triggers BadgerDB value log garbage collection. Call periodically
// to reclaim space from expired and deleted entries.
func (s *BadgerStore) RunGC() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	// Run GC until no more cleanup is possible
	for {
		err := s.db.RunValueLogGC(s.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close shuts the store down. If BadgerDB doesn't close within the
// configured timeout, Close returns an error instead of hanging shutdown.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.closeWait
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	logging.Info().Msg("Closing durable id store")

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Durable id store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

// countKeys scans keys under the store prefix without loading values.
// Runs once at open to seed the approximate count.
func (s *BadgerStore) countKeys() (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerStore) newEntry(id string, payload []byte) *badger.Entry {
	e := badger.NewEntry(key(id), payload)
	if s.retention > 0 {
		e = e.WithTTL(s.retention)
	}
	return e
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Errors
var (
	// ErrStoreClosed is returned when the store has been closed.
	ErrStoreClosed = fmt.Errorf("store is closed")

	// ErrEmptyID is returned when an empty id is provided.
	ErrEmptyID = fmt.Errorf("id cannot be empty")

	// ErrNotFound is returned when an id doesn't exist.
	ErrNotFound = fmt.Errorf("id not found")
)
