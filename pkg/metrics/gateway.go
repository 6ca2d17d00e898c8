// Copyright 2025 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics labels for the gateway domain.
const (
	LabelOpcode  = "opcode"
	LabelOutcome = "outcome"
)

// Metrics values for the checkpoint decision counter.
const (
	CheckpointTriggered = "triggered"
	CheckpointPostponed = "postponed"
	CheckpointSkipped   = "skipped"
)

// Gateway domain metrics, registered against the same default registry
// InitServiceMetrics uses.
var (
	// GatewayRequestTotal counts dispatched requests by opcode and outcome
	// (success/failure), one entry per Gateway.Handle call.
	// Labels: opcode, outcome
	GatewayRequestTotal *prometheus.CounterVec

	// GatewayCheckpointTotal counts WAL checkpoint hook decisions.
	// Labels: outcome (triggered/postponed/skipped)
	GatewayCheckpointTotal *prometheus.CounterVec

	// GatewayBarrierDuration measures the latency of the barrier call that
	// prefaces prepare/exec/query/exec_sql/query_sql.
	GatewayBarrierDuration prometheus.Histogram

	// GatewayActiveCursors tracks the number of connections currently
	// mid-stream on a QUERY/QUERY_SQL response (cursor non-nil).
	GatewayActiveCursors prometheus.Gauge
)

// InitGatewayMetrics initializes and registers the gateway domain metrics.
func InitGatewayMetrics() {
	GatewayRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "request",
			Name:      "total",
			Help:      "Total number of dispatched gateway requests by opcode and outcome.",
		},
		[]string{LabelOpcode, LabelOutcome},
	)

	GatewayCheckpointTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "wal",
			Name:      "checkpoint_total",
			Help:      "Total number of WAL checkpoint hook decisions by outcome.",
		},
		[]string{LabelOutcome},
	)

	GatewayBarrierDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "cluster",
			Name:      "barrier_duration_seconds",
			Help:      "Duration of the leadership barrier check preceding data-plane operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20), // 0.1ms to ~52s
		},
	)

	GatewayActiveCursors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "query",
			Name:      "active_cursors",
			Help:      "Number of connections currently streaming a multi-batch query response.",
		},
	)

	prometheus.MustRegister(
		GatewayRequestTotal,
		GatewayCheckpointTotal,
		GatewayBarrierDuration,
		GatewayActiveCursors,
	)
}
