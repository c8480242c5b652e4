// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package config

import (
	"fmt"

	"github.com/isorelayer/isorelayer/internal/validation"
)

// Validate checks that the configuration is complete and coherent.
// Field-level constraints live in validate struct tags; the checks here
// cover relationships between fields that tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateRelayTiming(); err != nil {
		return err
	}

	return c.validateDedupSizing()
}

// validateRelayTiming keeps the health checker and backoff schedule
// internally consistent.
func (c *Config) validateRelayTiming() error {
	if c.Relay.SilenceThreshold < c.Relay.HealthCheckInterval {
		return fmt.Errorf(
			"relay.silence_threshold (%s) must be at least relay.health_check_interval (%s), or every probe forces a reconnect",
			c.Relay.SilenceThreshold, c.Relay.HealthCheckInterval,
		)
	}

	if c.Relay.ReconnectBase > c.Relay.ReconnectCap {
		return fmt.Errorf(
			"relay.reconnect_base (%s) must not exceed relay.reconnect_cap (%s)",
			c.Relay.ReconnectBase, c.Relay.ReconnectCap,
		)
	}

	return nil
}

// validateDedupSizing rejects tier sizings that defeat the design.
func (c *Config) validateDedupSizing() error {
	// A recency cache larger than the bloom capacity is almost certainly
	// a misconfiguration: the filter would saturate long before the cache.
	if c.Deduplication.LRUSize > c.Deduplication.BloomCapacity {
		return fmt.Errorf(
			"deduplication.lru_size (%d) must not exceed deduplication.bloom_capacity (%d)",
			c.Deduplication.LRUSize, c.Deduplication.BloomCapacity,
		)
	}

	if c.Output.BatchSize > c.Output.QueueSize {
		return fmt.Errorf(
			"output.batch_size (%d) must not exceed output.queue_size (%d)",
			c.Output.BatchSize, c.Output.QueueSize,
		)
	}

	return nil
}
