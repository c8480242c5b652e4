// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/models"
	"github.com/isorelayer/isorelayer/internal/relay"
)

// RelayRequest is the body of relay add and remove operations. The URL is
// normalized by the pool, so bare hostnames are accepted and default to
// the wss scheme.
type RelayRequest struct {
	URL string `json:"url" validate:"required"`
}

// RelaysList returns the relay URLs currently tracked by the pool.
func (h *Handler) RelaysList(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Relay pool is not running", nil)
		return
	}

	relays := h.pool.ListRelays()
	respondJSON(w, http.StatusOK, models.RelayListResponse{
		Relays: relays,
		Count:  len(relays),
	})
}

// RelayAdd subscribes the pool to a new relay at runtime.
func (h *Handler) RelayAdd(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Relay pool is not running", nil)
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.pool.ConnectAndSubscribe(req.URL); err != nil {
		h.respondRelayError(w, req.URL, err)
		return
	}

	logging.Info().Str("relay", sanitizeLogValue(req.URL)).Msg("Relay added via API")
	respondJSON(w, http.StatusOK, models.RelayOpResponse{
		Success: true,
		Message: fmt.Sprintf("Relay %s added", req.URL),
	})
}

// RelayRemove drops a relay from the pool.
func (h *Handler) RelayRemove(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Relay pool is not running", nil)
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.pool.DisconnectRelay(req.URL); err != nil {
		h.respondRelayError(w, req.URL, err)
		return
	}

	logging.Info().Str("relay", sanitizeLogValue(req.URL)).Msg("Relay removed via API")
	respondJSON(w, http.StatusOK, models.RelayOpResponse{
		Success: true,
		Message: fmt.Sprintf("Relay %s removed", req.URL),
	})
}

// respondRelayError maps pool sentinel errors onto HTTP statuses.
func (h *Handler) respondRelayError(w http.ResponseWriter, url string, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidURL):
		respondError(w, http.StatusBadRequest, "INVALID_URL", fmt.Sprintf("Invalid relay URL: %s", sanitizeLogValue(url)), err)
	case errors.Is(err, relay.ErrPoolFull):
		respondError(w, http.StatusConflict, "POOL_FULL", "Relay pool is at its connection limit", err)
	case errors.Is(err, relay.ErrRelayNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Relay %s is not tracked", sanitizeLogValue(url)), err)
	case errors.Is(err, relay.ErrPoolStopped):
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Relay pool is shutting down", err)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Relay operation failed", err)
	}
}
