// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package relay

import (
	"context"
	neturl "net/url"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/nbd-wtf/go-nostr"
)

// incoming is one event as the transport hands it to the read loop.
type incoming struct {
	id      string
	payload []byte
}

// session is a live subscription to one relay. The events channel closes
// when the subscription ends for any reason; close tears it down early.
type session interface {
	events() <-chan incoming
	close()
}

// connectFunc dials a relay and opens the live subscription. Connections
// hold the transport behind this seam so the state machine runs against
// in-memory sessions in tests.
type connectFunc func(ctx context.Context, url string, kinds []int) (session, error)

// normalizeURL canonicalizes a relay url the way the protocol expects
// (wss scheme added when missing, lowercased host, no trailing slash).
func normalizeURL(raw string) (string, error) {
	u := nostr.NormalizeURL(strings.TrimSpace(raw))
	if u == "" {
		return "", ErrInvalidURL
	}
	parsed, err := neturl.Parse(u)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return u, nil
}

// dialNostr is the production connectFunc.
func dialNostr(ctx context.Context, url string, kinds []int) (session, error) {
	rl, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}

	// Live tail only: replaying a relay's history would flood the dedup
	// tiers with old ids on every reconnect.
	since := nostr.Now()
	filter := nostr.Filter{Since: &since}
	if len(kinds) > 0 {
		filter.Kinds = kinds
	}

	sub, err := rl.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		_ = rl.Close()
		return nil, err
	}

	s := &nostrSession{
		relay: rl,
		sub:   sub,
		out:   make(chan incoming, 64),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type nostrSession struct {
	relay *nostr.Relay
	sub   *nostr.Subscription
	out   chan incoming
	done  chan struct{}
	once  sync.Once
}

func (s *nostrSession) events() <-chan incoming { return s.out }

func (s *nostrSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Unsub()
		_ = s.relay.Close()
	})
}

// pump converts subscription events into seam values. It exits when the
// subscription closes or the session is closed, never blocking past either.
func (s *nostrSession) pump() {
	defer close(s.out)
	for {
		select {
		case evt, ok := <-s.sub.Events:
			if !ok {
				return
			}
			if evt == nil {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			select {
			case s.out <- incoming{id: evt.ID, payload: payload}:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}
