// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

/*
Package middleware provides HTTP middleware for the control plane API.

Two components are exposed, both in http.HandlerFunc form so the router
can thread them through chi with a small adapter:

  - RequestID: UUID request tracking for log correlation. Honors an
    X-Request-ID header set by an upstream proxy, otherwise generates
    a fresh ID, and stores it in the request context for logging.Ctx.
  - PrometheusMetrics: per-request instrumentation recording method,
    path, status code, latency, and an in-flight gauge.

Usage:

	handler := middleware.RequestID(
	    middleware.PrometheusMetrics(
	        businessHandler,
	    ),
	)

Both components are stateless and safe for concurrent use.

See Also:

  - internal/api: the router that mounts these around its endpoints
  - internal/metrics: Prometheus metric definitions
  - internal/logging: request ID context helpers
*/
package middleware
