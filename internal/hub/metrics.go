// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the broker's counters, gauges, and histograms,
// registered against a dedicated registry so cmd/hub-broker can mount
// it under /metrics independently of any global default.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveConnections   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	MessagesReceived    *prometheus.CounterVec
	MessagesSent        *prometheus.CounterVec
	RoutingErrors       *prometheus.CounterVec
	ConflictsDetected   prometheus.Counter
	ConflictsResolved   *prometheus.CounterVec
	SyncBatchSize       prometheus.Histogram
	SyncDurationSeconds prometheus.Histogram
	OfflineQueueDepth   prometheus.Gauge
	AuthFailuresTotal   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hub_broker_active_connections",
			Help: "Number of currently authenticated branch connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_broker_connections_total",
			Help: "Total connections accepted since startup.",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_broker_messages_received_total",
			Help: "Messages received from branches, by payload type.",
		}, []string{"type"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_broker_messages_sent_total",
			Help: "Messages sent to branches, by payload type.",
		}, []string{"type"}),
		RoutingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_broker_routing_errors_total",
			Help: "Routing failures, by error class.",
		}, []string{"error"}),
		ConflictsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_broker_conflicts_detected_total",
			Help: "Concurrent write conflicts detected.",
		}),
		ConflictsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_broker_conflicts_resolved_total",
			Help: "Conflicts resolved, by resolution outcome.",
		}, []string{"resolution"}),
		SyncBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_broker_sync_batch_size",
			Help:    "Number of changes per SyncBatch message.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SyncDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_broker_sync_duration_seconds",
			Help:    "Hub-side handling time of a final SyncBatch, from receipt to SyncComplete.",
			Buckets: prometheus.DefBuckets,
		}),
		OfflineQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hub_broker_offline_queue_depth",
			Help: "Total messages queued for offline branches.",
		}),
		AuthFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_broker_auth_failures_total",
			Help: "Handshake authentication failures.",
		}),
	}
}

// RoutingErrorCrossTenant is the label value recorded whenever the
// router refuses a message that would have crossed a tenant boundary
// — the invariant this whole package exists to protect.
const RoutingErrorCrossTenant = "cross_tenant"

// RoutingErrorSpoofedFrom is the label value recorded whenever a
// frame's `from` does not match the session it arrived on.
const RoutingErrorSpoofedFrom = "spoofed_from"
