// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isorelayer/isorelayer/internal/api"
	"github.com/isorelayer/isorelayer/internal/config"
	"github.com/isorelayer/isorelayer/internal/dedup"
	"github.com/isorelayer/isorelayer/internal/distributor"
	"github.com/isorelayer/isorelayer/internal/event"
	"github.com/isorelayer/isorelayer/internal/logging"
	"github.com/isorelayer/isorelayer/internal/metrics"
	"github.com/isorelayer/isorelayer/internal/relay"
	"github.com/isorelayer/isorelayer/internal/store"
	"github.com/isorelayer/isorelayer/internal/supervisor"
	"github.com/isorelayer/isorelayer/internal/supervisor/services"
	ws "github.com/isorelayer/isorelayer/internal/websocket"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Config not yet available, the default logger has to do
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
	})
	metrics.SetAppInfo(version)

	logging.Info().Str("version", version).Msg("Starting IsoRelayer with supervisor tree")
	logging.Info().
		Strs("bootstrap_relays", cfg.Relay.BootstrapRelays).
		Ints("kinds", cfg.Relay.Kinds).
		Str("store_path", cfg.Deduplication.StorePath).
		Int("port", cfg.Server.Port).
		Msg("Configuration loaded")

	// The durable store opens before anything that uses it and closes
	// after the tree stops, so no supervised service sees a closed store.
	storeCfg := store.DefaultConfig(cfg.Deduplication.StorePath)
	storeCfg.Retention = cfg.Deduplication.Retention
	st, err := store.Open(storeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open dedup store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dedup store")
		}
	}()
	logging.Info().
		Str("path", cfg.Deduplication.StorePath).
		Int64("stored_ids", st.ApproximateCount()).
		Msg("Dedup store opened")

	engine, err := dedup.NewEngine(st, dedup.Config{
		HotSetHorizon: cfg.Deduplication.HotSetHorizon,
		BloomCapacity: cfg.Deduplication.BloomCapacity,
		BloomFPRate:   cfg.Deduplication.BloomFPRate,
		CacheSize:     cfg.Deduplication.LRUSize,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build dedup engine")
	}
	writer := dedup.NewWriter(engine)

	// Shared pipeline queue: the pool produces admitted events, the
	// distributor consumes them, the control plane reports its depth.
	queue := make(chan *event.Inbound, cfg.Output.QueueSize)

	pool := relay.NewPool(relay.Config{
		BootstrapRelays:  cfg.Relay.BootstrapRelays,
		Kinds:            cfg.Relay.Kinds,
		MaxConnections:   cfg.Relay.MaxConnections,
		ReconnectBase:    cfg.Relay.ReconnectBase,
		ReconnectCap:     cfg.Relay.ReconnectCap,
		HealthInterval:   cfg.Relay.HealthCheckInterval,
		SilenceThreshold: cfg.Relay.SilenceThreshold,
	}, engine, queue)

	// Sinks are fixed at startup. The hub only exists when websocket
	// output is enabled; without it the /ws endpoint answers 503.
	var wsHub *ws.Hub
	var sinks []distributor.Sink
	if cfg.Output.WebsocketEnabled {
		wsHub = ws.NewHub()
		sinks = append(sinks, distributor.NewHubSink(wsHub))
	}
	for _, addr := range cfg.Output.DownstreamTCP {
		sinks = append(sinks, distributor.NewTCPSink(addr))
	}
	if len(cfg.Output.DownstreamREST) > 0 {
		httpClient := &http.Client{Timeout: cfg.Output.SinkTimeout}
		for _, url := range cfg.Output.DownstreamREST {
			sinks = append(sinks, distributor.WithBreaker(
				distributor.NewWebhookSink(url, httpClient),
				distributor.BreakerConfig{},
			))
		}
	}

	dist := distributor.New(queue, distributor.Config{
		BatchSize:   cfg.Output.BatchSize,
		MaxLatency:  cfg.Output.MaxLatency,
		SinkTimeout: cfg.Output.SinkTimeout,
	}, sinks...)
	logging.Info().
		Int("sinks", len(sinks)).
		Bool("websocket", cfg.Output.WebsocketEnabled).
		Int("tcp_targets", len(cfg.Output.DownstreamTCP)).
		Int("rest_targets", len(cfg.Output.DownstreamREST)).
		Msg("Distributor configured")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog supervision events
	treeCfg := supervisor.DefaultTreeConfig()
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	handler := api.NewHandler(cfg, pool, engine, wsHub, queue)
	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Storage layer: sweep at the hot-set horizon cadence
	maintCfg := services.DefaultMaintenanceConfig()
	maintCfg.SweepInterval = cfg.Deduplication.HotSetHorizon
	tree.AddStorageService(services.NewStoreWriterService(writer))
	tree.AddStorageService(services.NewMaintenanceService(engine, st, maintCfg))

	// Pipeline layer
	tree.AddPipelineService(services.NewRelayPoolService(pool))
	tree.AddPipelineService(services.NewDistributorService(dist))
	if wsHub != nil {
		tree.AddPipelineService(services.NewHubService(wsHub))
	}

	// API layer: the HTTP shutdown deadline matches the tree's so the
	// supervisor never reports the server as unstopped while it drains
	tree.AddAPIService(services.NewHTTPServerService(server, treeCfg.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Aggregator stopped gracefully")
}
