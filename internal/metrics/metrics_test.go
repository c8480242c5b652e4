// IsoRelayer - Nostr Event Stream Aggregation and Deduplication
// Copyright 2026 The IsoRelayer Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/isorelayer/isorelayer

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDuplicate(t *testing.T) {
	before := testutil.ToFloat64(EventsDuplicate.WithLabelValues("hot"))
	RecordDuplicate("hot")
	after := testutil.ToFloat64(EventsDuplicate.WithLabelValues("hot"))

	if after != before+1 {
		t.Errorf("duplicate counter = %f, want %f", after, before+1)
	}
}

func TestRecordAdmitted(t *testing.T) {
	before := testutil.ToFloat64(EventsAdmitted)
	RecordAdmitted()
	RecordAdmitted()
	after := testutil.ToFloat64(EventsAdmitted)

	if after != before+2 {
		t.Errorf("admitted counter = %f, want %f", after, before+2)
	}
}

func TestRecordEventReceived(t *testing.T) {
	relay := "wss://relay.test.example"
	before := testutil.ToFloat64(EventsReceived.WithLabelValues(relay))
	RecordEventReceived(relay)
	after := testutil.ToFloat64(EventsReceived.WithLabelValues(relay))

	if after != before+1 {
		t.Errorf("received counter = %f, want %f", after, before+1)
	}
}

func TestUpdateQueueDepth(t *testing.T) {
	UpdateQueueDepth(42)
	if got := testutil.ToFloat64(QueueDepth); got != 42 {
		t.Errorf("queue depth = %f, want 42", got)
	}
	UpdateQueueDepth(0)
	if got := testutil.ToFloat64(QueueDepth); got != 0 {
		t.Errorf("queue depth = %f, want 0", got)
	}
}

func TestUpdateDedupSizes(t *testing.T) {
	UpdateDedupSizes(10, 2000, 0.25)

	if got := testutil.ToFloat64(HotSetEntries); got != 10 {
		t.Errorf("hot set gauge = %f, want 10", got)
	}
	if got := testutil.ToFloat64(RecencyCacheEntries); got != 2000 {
		t.Errorf("cache gauge = %f, want 2000", got)
	}
	if got := testutil.ToFloat64(FilterFillRatio); got != 0.25 {
		t.Errorf("fill ratio gauge = %f, want 0.25", got)
	}
}

func TestSetSinkBreakerOpen(t *testing.T) {
	SetSinkBreakerOpen("webhook-1", true)
	if got := testutil.ToFloat64(SinkBreakerOpen.WithLabelValues("webhook-1")); got != 1 {
		t.Errorf("open breaker gauge = %f, want 1", got)
	}
	SetSinkBreakerOpen("webhook-1", false)
	if got := testutil.ToFloat64(SinkBreakerOpen.WithLabelValues("webhook-1")); got != 0 {
		t.Errorf("closed breaker gauge = %f, want 0", got)
	}
}

func TestRecordBatchFlush(t *testing.T) {
	before := testutil.ToFloat64(BatchesFlushed.WithLabelValues("size"))
	RecordBatchFlush("size", 100, 5*time.Millisecond)
	after := testutil.ToFloat64(BatchesFlushed.WithLabelValues("size"))

	if after != before+1 {
		t.Errorf("flush counter = %f, want %f", after, before+1)
	}
}

func TestRecordStoreWrite(t *testing.T) {
	okBefore := testutil.ToFloat64(StoreWrites.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(StoreWrites.WithLabelValues("failure"))

	RecordStoreWrite(true)
	RecordStoreWrite(false)

	if got := testutil.ToFloat64(StoreWrites.WithLabelValues("success")); got != okBefore+1 {
		t.Errorf("success writes = %f, want %f", got, okBefore+1)
	}
	if got := testutil.ToFloat64(StoreWrites.WithLabelValues("failure")); got != failBefore+1 {
		t.Errorf("failure writes = %f, want %f", got, failBefore+1)
	}
}

func TestWebSocketMetrics(t *testing.T) {
	UpdateWSConnections(3)
	if got := testutil.ToFloat64(WSConnections); got != 3 {
		t.Errorf("ws connections gauge = %f, want 3", got)
	}
	UpdateWSConnections(0)
	if got := testutil.ToFloat64(WSConnections); got != 0 {
		t.Errorf("ws connections gauge = %f, want 0", got)
	}

	sentBefore := testutil.ToFloat64(WSMessagesSent)
	droppedBefore := testutil.ToFloat64(WSMessagesDropped)
	RecordWSFrameSent()
	RecordWSFrameDropped()
	if got := testutil.ToFloat64(WSMessagesSent); got != sentBefore+1 {
		t.Errorf("ws sent counter = %f, want %f", got, sentBefore+1)
	}
	if got := testutil.ToFloat64(WSMessagesDropped); got != droppedBefore+1 {
		t.Errorf("ws dropped counter = %f, want %f", got, droppedBefore+1)
	}
}

func TestUpdateUptime(t *testing.T) {
	UpdateUptime()
	if got := testutil.ToFloat64(AppUptime); got < 0 {
		t.Errorf("uptime gauge = %f, want >= 0", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", 200, 2*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))

	if after != before+1 {
		t.Errorf("http counter = %f, want %f", after, before+1)
	}
}

// TestMetricLint verifies all registered metrics satisfy Prometheus
// naming and help conventions.
func TestMetricLint(t *testing.T) {
	// Touch label combinations so vectors materialize for the linter.
	RecordEventReceived("wss://lint.example")
	RecordDuplicate("cache")
	RecordInvalid("wss://lint.example")
	UpdateRelayConnections("connected", 1)
	RecordRelayReconnect("wss://lint.example")
	RecordSinkDelivery("hub", "success")
	SetAppInfo("test")

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
