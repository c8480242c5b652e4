// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package models defines the JSON payload types served by the HTTP API.
//
// Successful responses use the plain payload types (HealthStatus,
// RelayOpResponse, MetricsSummary, ...). Failures are wrapped in
// APIResponse with a structured APIError so every endpoint rejects
// with the same shape.
package models
