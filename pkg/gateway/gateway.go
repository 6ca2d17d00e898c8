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

// FlushFunc is invoked exactly once per request, or once per streaming
// batch. The caller must follow it with a matching Flushed(response)
// call before the owning slot can accept a new request.
type FlushFunc func(resp *Response)

// Gateway is the per-connection request-dispatch state machine. One
// Gateway is created per accepted client connection and destroyed on
// connection close; it is not safe for concurrent use by multiple
// goroutines, matching the single-threaded, cooperative scheduling model
// the wire protocol assumes.
type Gateway struct {
	clientID uint32
	cluster  Cluster
	options  Options
	logger   *zap.Logger

	db    *dbHandle
	slots [numSlots]slot

	heartbeat int64
	flush     FlushFunc

	newConn func(ctx context.Context, name string, flags uint32, vfs string, opts Options) (Conn, *EngineError)
}

// Config bundles the constructor arguments a Gateway needs beyond the
// Cluster/Options collaborators: a factory for the abstract local SQL
// connection, since the engine itself is out of this package's scope.
type Config struct {
	Cluster Cluster
	Options Options
	Logger  *zap.Logger
	Flush   FlushFunc
	NewConn func(ctx context.Context, name string, flags uint32, vfs string, opts Options) (Conn, *EngineError)
}

// New creates a Gateway attached to one client connection. The returned
// Gateway holds no DB handle until OPEN succeeds.
func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cluster: cfg.Cluster,
		options: cfg.Options,
		logger:  logger,
		flush:   cfg.Flush,
		newConn: cfg.NewConn,
	}
}

// Accept reports whether the slot designated for opcode t is currently
// free. Lifted out of Handle as its own predicate so slot-admission (an
// independently testable invariant) doesn't require driving a full
// request through Handle.
func (g *Gateway) Accept(t Opcode) bool {
	return !g.slots[t.Slot()].busy()
}

// Handle is the gateway's single entry point. It returns a non-zero code
// only when the request is rejected outright (slot busy); in every other
// case, including engine and cluster failures, it renders a FAILURE
// response, calls flush exactly once, and returns 0.
func (g *Gateway) Handle(ctx context.Context, req *Request) int {
	if !g.Accept(req.Type) {
		return ErrKindProtocol
	}

	s := &g.slots[req.Type.Slot()]
	s.request = req

	resp := g.dispatch(ctx, req)
	s.response = *resp
	recordRequestOutcome(req.Type, &s.response)
	g.flush(&s.response)
	return ErrKindOK
}

func recordRequestOutcome(t Opcode, resp *Response) {
	if metrics.GatewayRequestTotal == nil {
		return
	}
	outcome := metrics.ResultSuccess
	if resp.Kind == RespFailure {
		outcome = metrics.ResultFailure
	}
	metrics.GatewayRequestTotal.WithLabelValues(t.String(), outcome).Inc()
}

// Flushed is the completion callback the transport invokes after writing
// resp's payload to the wire. It locates the owning slot by pointer
// identity, releases the response's per-response dynamics, and either
// drains the next streaming batch or frees the slot.
func (g *Gateway) Flushed(resp *Response) {
	sl := g.slotFor(resp)
	if sl == nil {
		return
	}

	if sl.cursor != nil {
		next := g.queryBatch(context.Background(), sl)
		sl.response = *next
		g.flush(&sl.response)
		return
	}

	sl.response.reset()
	sl.free()
}

// Aborted is a no-op hook the transport calls instead of Flushed when a
// queued response will never be written to the wire. Per the documented
// caveat inherited from the wire protocol, the gateway does not free the
// response's dynamics in this path; a transport that mixes Aborted with a
// prior Flush on the same response leaks memory by design. Aborted
// assumes no prior Flush occurred for this response.
func (g *Gateway) Aborted(resp *Response) {}

// Close tears down the gateway: every live statement, the DB handle (if
// any), and clears both slots. Idempotent.
func (g *Gateway) Close() {
	if g.db != nil {
		g.db.stmts.closeAll()
		if g.db.conn != nil {
			_ = g.db.conn.Close()
		}
		g.db = nil
	}
	for i := range g.slots {
		g.slots[i].free()
		g.slots[i].response.reset()
	}
}

func (g *Gateway) slotFor(resp *Response) *slot {
	for i := range g.slots {
		if &g.slots[i].response == resp {
			return &g.slots[i]
		}
	}
	return nil
}

func (g *Gateway) lookupDB(id uint32) (*dbHandle, *Response) {
	if g.db == nil || g.db.id != id {
		return nil, errNotFoundDB(id)
	}
	return g.db, nil
}

func (g *Gateway) lookupStmt(db *dbHandle, id uint32) (Statement, *Response) {
	stmt, ok := db.stmts.get(id)
	if !ok {
		return nil, errNotFoundStmt(id)
	}
	return stmt, nil
}
