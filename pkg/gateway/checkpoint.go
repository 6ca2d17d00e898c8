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

package gateway

import (
	"context"

	"github.com/pingcap/tidb-lite/pkg/metrics"
	"go.uber.org/zap"
)

func recordCheckpointOutcome(outcome string) {
	if metrics.GatewayCheckpointTotal == nil {
		return
	}
	metrics.GatewayCheckpointTotal.WithLabelValues(outcome).Inc()
}

// walHook is invoked by the SQL engine after every successful commit on
// the local connection, with the post-commit WAL frame count. It must
// never acquire any gateway-level lock and must treat a BUSY reader-slot
// lock as a normal, expected outcome — this runs on the engine's commit
// path, not on the gateway's own goroutine in general.
//
// This mirrors the engine's own passive-checkpoint admission rule,
// lifted to the distributed layer so
// checkpoints only advance the cluster-wide truncation point when no
// local reader would be starved.
func (g *Gateway) walHook(ctx context.Context, db *dbHandle, frameCount uint32) {
	if frameCount < g.options.CheckpointThreshold {
		recordCheckpointOutcome(metrics.CheckpointSkipped)
		return
	}

	wal := db.conn.WAL()
	mxFrame := wal.MxFrame()
	marks := wal.ReaderMarks()

	for i := 1; i < len(marks); i++ {
		if marks[i] >= mxFrame {
			continue
		}
		ok, unlock := wal.TryLockExclusive(i)
		if !ok {
			// An active reader is trailing the checkpoint: postpone.
			// This is success-with-no-action, not an error.
			g.logger.Debug("checkpoint postponed, reader busy", zap.Int("slot", i))
			recordCheckpointOutcome(metrics.CheckpointPostponed)
			return
		}
		unlock()
	}

	recordCheckpointOutcome(metrics.CheckpointTriggered)
	if err := g.cluster.Checkpoint(ctx, uint64(db.id)); err != nil {
		// The wire protocol intentionally drops this return code; we
		// still surface it through the ambient logger so operators
		// have an observability channel.
		g.logger.Warn("cluster checkpoint failed", zap.Error(err))
	}
}
