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
	"time"

	"github.com/pingcap/tidb-lite/pkg/metrics"
	"go.uber.org/zap"
)

func (g *Gateway) dispatch(ctx context.Context, req *Request) *Response {
	g.logger.Debug("dispatch", zap.Stringer("opcode", req.Type))

	switch req.Type {
	case OpLeader:
		return g.handleLeader(ctx)
	case OpClient:
		return g.handleClient()
	case OpHeartbeat:
		return g.handleHeartbeat(ctx, req)
	case OpInterrupt:
		return g.handleInterrupt()
	case OpOpen:
		return g.handleOpen(ctx, req)
	case OpPrepare:
		return g.handlePrepare(ctx, req)
	case OpExec:
		return g.handleExec(ctx, req)
	case OpQuery:
		return g.handleQuery(ctx, req)
	case OpFinalize:
		return g.handleFinalize(ctx, req)
	case OpExecSQL:
		return g.handleExecSQL(ctx, req)
	case OpQuerySQL:
		return g.handleQuerySQL(ctx, req)
	default:
		return errUnknownOpcode(req.Type)
	}
}

// handleLeader implements the LEADER opcode: return the cluster's current
// leader address, or fold "no leader" into NOMEM (preserved bit-exact,
// see errors.go).
func (g *Gateway) handleLeader(ctx context.Context) *Response {
	addr, ok := g.cluster.Leader(ctx)
	if !ok {
		return errNoLeader()
	}
	return &Response{Kind: RespServer, Address: addr}
}

// handleClient implements the CLIENT opcode. Client registration is a
// placeholder in this protocol revision; client_id is always 0.
func (g *Gateway) handleClient() *Response {
	return &Response{Kind: RespWelcome, HeartbeatTimeout: g.options.HeartbeatTimeout}
}

// handleHeartbeat implements the HEARTBEAT opcode: fetch the peer list
// and advance the gateway's monotone heartbeat clock on success.
func (g *Gateway) handleHeartbeat(ctx context.Context, req *Request) *Response {
	servers, err := g.cluster.Servers(ctx)
	if err != nil {
		return failureFromEngine(err)
	}
	g.heartbeat = req.Timestamp
	return &Response{Kind: RespServers, List: servers}
}

// handleInterrupt implements the INTERRUPT opcode: cancel any streaming
// query suspended on slot 0 by clearing its cursor and request, which
// frees slot 0 at once. The response itself is always EMPTY on slot 1.
func (g *Gateway) handleInterrupt() *Response {
	data := &g.slots[0]
	data.setCursor(nil)
	data.request = nil
	return respEmpty
}

// barrier calls cluster.Barrier, the check every data-plane handler is
// prefaced with, and turns a failure into a FAILURE response carrying the
// collaborator's own code and message.
func (g *Gateway) barrier(ctx context.Context) *Response {
	start := time.Now()
	err := g.cluster.Barrier(ctx)
	if metrics.GatewayBarrierDuration != nil {
		metrics.GatewayBarrierDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return failureFromEngine(err)
	}
	return nil
}
