// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

// Package event defines the inbound event type handed between pipeline stages.
//
// An Inbound value is owned by exactly one stage at a time: it is created by
// the relay read loop that received it, passed through admission, queued, and
// finally consumed by the distributor. Nothing retains a reference after
// forwarding, so no internal locking is needed.
package event

import (
	"time"
)

// IDLength is the length of a hex-encoded event id (a 32-byte content hash).
const IDLength = 64

// Inbound is a single event received from an upstream relay.
type Inbound struct {
	// ID is the protocol-level content identifier, 64 lowercase hex
	// characters. It is the deduplication key; equality is exact.
	ID string

	// Payload is the serialized protocol event as received, forwarded
	// verbatim to downstream sinks.
	Payload []byte

	// Relay is the normalized URL of the relay that delivered this copy.
	Relay string

	// Received is the local receipt timestamp.
	Received time.Time
}

// ValidID reports whether id has the shape of a protocol event id:
// exactly IDLength lowercase hex characters. Ids failing this check are
// treated as decode corruption and dropped before admission.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < IDLength; i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
