// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package event

import (
	"strings"
	"testing"
)

func TestValidID(t *testing.T) {
	valid := strings.Repeat("0123456789abcdef", 4)
	if len(valid) != IDLength {
		t.Fatalf("test fixture has length %d, want %d", len(valid), IDLength)
	}

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid lowercase hex", valid, true},
		{"empty", "", false},
		{"too short", valid[:IDLength-1], false},
		{"too long", valid + "a", false},
		{"uppercase hex", strings.ToUpper(valid), false},
		{"non-hex character", valid[:IDLength-1] + "g", false},
		{"whitespace", valid[:IDLength-1] + " ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidID(tt.id); got != tt.want {
				t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func BenchmarkValidID(b *testing.B) {
	id := strings.Repeat("abcdef0123456789", 4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidID(id)
	}
}
