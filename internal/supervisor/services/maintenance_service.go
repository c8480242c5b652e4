// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
	"github.com/isorelayer/isorelayer/internal/store"
)

// Sweeper matches the dedup engine's hot-set sweep. Sweep expires ids
// whose horizon has passed and returns how many were dropped.
type Sweeper interface {
	Sweep() int
}

// MaintainedStore matches the BadgerStore maintenance surface.
type MaintainedStore interface {
	RunGC() error
	Stats() store.Stats
}

// MaintenanceConfig holds the tick intervals for background upkeep.
type MaintenanceConfig struct {
	// SweepInterval is how often expired hot-set ids are dropped.
	// Default: 1s. Keep it at or below the hot set horizon so the set
	// stays near its steady-state size.
	SweepInterval time.Duration

	// GCInterval is how often BadgerDB value log GC runs. Default: 5m.
	GCInterval time.Duration

	// StatsInterval is how often store gauges are refreshed. Default: 15s.
	StatsInterval time.Duration
}

// DefaultMaintenanceConfig returns sensible defaults.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		SweepInterval: time.Second,
		GCInterval:    5 * time.Minute,
		StatsInterval: 15 * time.Second,
	}
}

// MaintenanceService runs periodic background upkeep: hot-set sweeps,
// Badger value log GC, and store gauge refreshes. Keeping these off the
// admit path means Admit latency never includes a sweep or a GC pass.
type MaintenanceService struct {
	engine Sweeper
	store  MaintainedStore
	config MaintenanceConfig
	logger zerolog.Logger
	name   string
}

// NewMaintenanceService creates a new maintenance service. Zero config
// values fall back to the defaults.
func NewMaintenanceService(engine Sweeper, st MaintainedStore, config MaintenanceConfig) *MaintenanceService {
	defaults := DefaultMaintenanceConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.GCInterval <= 0 {
		config.GCInterval = defaults.GCInterval
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = defaults.StatsInterval
	}

	return &MaintenanceService{
		engine: engine,
		store:  st,
		config: config,
		logger: logging.WithComponent("maintenance"),
		name:   "maintenance",
	}
}

// Serve implements suture.Service. It ticks until the context is
// canceled. GC failures are logged and retried on the next tick rather
// than crashing the service; a failed GC only delays space reclamation.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	m.logger.Info().
		Dur("sweep_interval", m.config.SweepInterval).
		Dur("gc_interval", m.config.GCInterval).
		Msg("Maintenance service started")

	sweep := time.NewTicker(m.config.SweepInterval)
	defer sweep.Stop()
	gc := time.NewTicker(m.config.GCInterval)
	defer gc.Stop()
	stats := time.NewTicker(m.config.StatsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Maintenance service stopped")
			return ctx.Err()

		case <-sweep.C:
			if n := m.engine.Sweep(); n > 0 {
				m.logger.Debug().Int("expired", n).Msg("Hot set swept")
			}

		case <-gc.C:
			if err := m.store.RunGC(); err != nil {
				m.logger.Warn().Err(err).Msg("Value log GC failed")
			}

		case <-stats.C:
			st := m.store.Stats()
			metrics.UpdateStoreGauges(st.Entries, st.SizeBytes)
			metrics.UpdateUptime()
		}
	}
}

// String implements fmt.Stringer for logging.
func (m *MaintenanceService) String() string {
	return m.name
}
