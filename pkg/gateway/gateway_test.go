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
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCluster is a deterministic, in-memory Cluster used to drive every
// scenario in the testable-properties section without a real replicated
// backend.
type fakeCluster struct {
	leaderAddr    string
	hasLeader     bool
	servers       []Server
	serversErr    *EngineError
	barrierErr    *EngineError
	checkpointErr error
	registered    []uint64
	checkpoints   int
}

func (c *fakeCluster) Leader(context.Context) (string, bool) { return c.leaderAddr, c.hasLeader }
func (c *fakeCluster) Servers(context.Context) ([]Server, *EngineError) {
	return c.servers, c.serversErr
}
func (c *fakeCluster) Register(_ context.Context, h uint64) { c.registered = append(c.registered, h) }
func (c *fakeCluster) Barrier(context.Context) *EngineError { return c.barrierErr }
func (c *fakeCluster) Checkpoint(context.Context, uint64) error {
	c.checkpoints++
	return c.checkpointErr
}

// fakeConn is a minimal in-memory table with a single integer column,
// enough to exercise prepare/exec/query/streaming without a real SQL
// engine. Statements are ";"-delimited.
type fakeConn struct {
	rows       []int
	nextInsert int
	closed     bool
	walHook    func(uint32)
	wal        *fakeWAL
}

func newFakeConn() *fakeConn {
	return &fakeConn{wal: &fakeWAL{}}
}

func (c *fakeConn) Prepare(_ context.Context, sql string) (Statement, string, *EngineError) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, "", nil
	}
	parts := strings.SplitN(trimmed, ";", 2)
	head := strings.TrimSpace(parts[0])
	tail := ""
	if len(parts) == 2 {
		tail = parts[1]
	}
	if head == "" {
		return nil, "", nil
	}
	if strings.HasPrefix(head, "BAD") {
		return nil, "", &EngineError{Code: ErrKindEngineFailure, Message: "syntax error"}
	}
	return &fakeStmt{conn: c, sql: head}, tail, nil
}

func (c *fakeConn) LastError() string { return "" }
func (c *fakeConn) Close() error      { c.closed = true; return nil }
func (c *fakeConn) InstallWALHook(fn func(uint32)) {
	c.walHook = fn
}
func (c *fakeConn) WAL() WAL { return c.wal }

type fakeStmt struct {
	conn      *fakeConn
	sql       string
	params    []Param
	cursor    int
	finalized bool
}

func (s *fakeStmt) ParamCount() int {
	return strings.Count(s.sql, "?")
}

func (s *fakeStmt) Bind(params []Param) *EngineError {
	if strings.HasPrefix(s.sql, "BADBIND") {
		return &EngineError{Code: ErrKindEngineFailure, Message: "bad bind"}
	}
	s.params = params
	return nil
}

func (s *fakeStmt) Exec(context.Context) (uint64, uint64, *EngineError) {
	if strings.HasPrefix(s.sql, "BADEXEC") {
		return 0, 0, &EngineError{Code: ErrKindEngineFailure, Message: "exec failed"}
	}
	if strings.HasPrefix(s.sql, "INSERT") {
		v := 0
		if len(s.params) > 0 {
			if iv, ok := s.params[0].Value.(int); ok {
				v = iv
			}
		}
		s.conn.rows = append(s.conn.rows, v)
		s.conn.nextInsert++
		return uint64(s.conn.nextInsert), 1, nil
	}
	return 0, 0, nil
}

func (s *fakeStmt) Step(_ context.Context, buf []byte, budget int) (StepResult, []byte, *EngineError) {
	if s.cursor >= len(s.conn.rows) {
		return StepDone, buf, nil
	}
	encoded := []byte(strconv.Itoa(s.conn.rows[s.cursor]) + ",")
	if len(encoded) > budget && len(buf) > 0 {
		// caller's budget exhausted for this batch; caller re-invokes.
		return StepRow, buf, nil
	}
	s.cursor++
	return StepRow, append(buf, encoded...), nil
}

func (s *fakeStmt) Finalize() error { s.finalized = true; return nil }

type fakeWAL struct {
	mxFrame uint32
	marks   []uint32
	busy    map[int]bool
}

func (w *fakeWAL) MxFrame() uint32       { return w.mxFrame }
func (w *fakeWAL) ReaderMarks() []uint32 { return w.marks }
func (w *fakeWAL) TryLockExclusive(i int) (bool, func()) {
	if w.busy != nil && w.busy[i] {
		return false, func() {}
	}
	return true, func() {}
}

func newTestGateway(t *testing.T, cluster *fakeCluster) (*Gateway, *fakeConn) {
	t.Helper()
	var conn *fakeConn
	g := New(Config{
		Cluster: cluster,
		Options: DefaultOptions(),
		Flush:   func(*Response) {},
		NewConn: func(ctx context.Context, name string, flags uint32, vfs string, opts Options) (Conn, *EngineError) {
			conn = newFakeConn()
			return conn, nil
		},
	})
	return g, nil
}

// handleAndFlush drives one request through Handle with a flush
// collector, returning the (single, for non-streaming ops) response. It
// then reports that response Flushed, as the transport does once the
// response is written, so the slot is free for the next request.
func handleAndFlush(t *testing.T, g *Gateway, req *Request) *Response {
	t.Helper()
	var got, sent *Response
	g.flush = func(r *Response) {
		cp := *r
		got = &cp
		sent = r
	}
	code := g.Handle(context.Background(), req)
	require.Equal(t, ErrKindOK, code)
	require.NotNil(t, got)
	resp := got
	g.Flushed(sent)
	return resp
}

func TestHandshake(t *testing.T) {
	cluster := &fakeCluster{leaderAddr: "10.0.0.1:9000", hasLeader: true}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpLeader})
	require.Equal(t, RespServer, resp.Kind)
	require.Equal(t, "10.0.0.1:9000", resp.Address)

	resp = handleAndFlush(t, g, &Request{Type: OpClient, ClientID: 1})
	require.Equal(t, RespWelcome, resp.Kind)
	require.Equal(t, DefaultOptions().HeartbeatTimeout, resp.HeartbeatTimeout)
}

func TestLeaderMissingFoldsIntoNoMem(t *testing.T) {
	cluster := &fakeCluster{hasLeader: false}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpLeader})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindNoMem, resp.Code)
}

func TestOpenPrepareExec(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	require.Equal(t, RespDB, resp.Kind)
	require.Equal(t, uint32(0), resp.DBID)
	require.Len(t, cluster.registered, 1)

	resp = handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})
	require.Equal(t, RespStmt, resp.Kind)
	require.Equal(t, uint32(0), resp.StmtID)
	require.Equal(t, 1, resp.Params)

	resp = handleAndFlush(t, g, &Request{Type: OpExec, DBID: 0, StmtID: 0, Params: []Param{{Value: 42}}})
	require.Equal(t, RespResult, resp.Kind)
	require.Equal(t, uint64(1), resp.LastInsertID)
	require.Equal(t, uint64(1), resp.RowsAffected)
}

func TestDoubleOpenIsBusy(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	require.Equal(t, RespDB, resp.Kind)

	resp = handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test2"})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindBusy, resp.Code)
	require.Equal(t, "a database for this connection is already open", resp.Message)

	// the original DB remains usable
	resp = handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})
	require.Equal(t, RespStmt, resp.Kind)
}

func TestBarrierFailurePreventsPrepare(t *testing.T) {
	cluster := &fakeCluster{barrierErr: &EngineError{Code: ErrKindBarrierFailure, Message: "boom"}}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	resp := handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "SELECT 1"})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindBarrierFailure, resp.Code)
}

func TestBarrierFailurePreventsFinalize(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})

	cluster.barrierErr = &EngineError{Code: ErrKindBarrierFailure, Message: "boom"}
	resp := handleAndFlush(t, g, &Request{Type: OpFinalize, DBID: 0, StmtID: 0})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindBarrierFailure, resp.Code)
}

// TestBarrierFailurePropagatesActualCode confirms the barrier failure
// path relays whatever code the collaborator reports, rather than
// substituting a fixed sentinel.
func TestBarrierFailurePropagatesActualCode(t *testing.T) {
	cluster := &fakeCluster{barrierErr: &EngineError{Code: ErrKindNoMem, Message: "raft log unavailable"}}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	resp := handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "SELECT 1"})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindNoMem, resp.Code)
	require.Equal(t, "raft log unavailable", resp.Message)
}

func TestFinalizeThenLookupNotFound(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})

	resp := handleAndFlush(t, g, &Request{Type: OpFinalize, DBID: 0, StmtID: 0})
	require.Equal(t, RespEmpty, resp.Kind)

	resp = handleAndFlush(t, g, &Request{Type: OpExec, DBID: 0, StmtID: 0})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindNotFound, resp.Code)
}

func TestStreamingQuerySingleBatch(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})
	for i := 0; i < 3; i++ {
		handleAndFlush(t, g, &Request{Type: OpExec, DBID: 0, StmtID: 0, Params: []Param{{Value: i}}})
	}
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "SELECT * FROM t"})

	resp := handleAndFlush(t, g, &Request{Type: OpQuery, DBID: 0, StmtID: 1})
	require.Equal(t, RespRows, resp.Kind)
	require.Equal(t, RowsDone, resp.Marker)
	require.Equal(t, "0,1,2,", string(resp.Rows))
}

func TestStreamingQuerySmallResultFreesSlotOnFlushed(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	fc := g.db.conn.(*fakeConn)
	fc.rows = []int{10, 20, 30}

	sl := &g.slots[0]
	sl.cursor = &fakeStmt{conn: fc, sql: "SELECT"}
	sl.request = &Request{Type: OpQuery}
	sl.response = *g.queryBatch(context.Background(), sl)

	// A result set this small fits in one batch: DONE immediately, no
	// PART, and the cumulative rows match the table in order.
	require.Equal(t, RespRows, sl.response.Kind)
	require.Equal(t, RowsDone, sl.response.Marker)
	require.Equal(t, "10,20,30,", string(sl.response.Rows))
	require.Nil(t, sl.cursor)

	var flushed []*Response
	g.flush = func(r *Response) {
		cp := *r
		flushed = append(flushed, &cp)
	}
	g.Flushed(&sl.response)
	require.False(t, sl.busy())
	require.Empty(t, flushed) // cursor was already nil: no further batch flushed
}

// TestStreamingQueryRealMultiBatch drives a result set large enough to
// cross batchBudget twice, forcing the PART, PART, DONE sequence and the
// Flushed-driven continuation that fills each subsequent batch. It also
// exercises the final Flushed call that merely releases the slot once the
// DONE response has already been written to the wire.
func TestStreamingQueryRealMultiBatch(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	fc := g.db.conn.(*fakeConn)
	const rowCount = 70000
	fc.rows = make([]int, rowCount)
	for i := range fc.rows {
		fc.rows[i] = 1
	}

	sl := &g.slots[0]
	sl.cursor = &fakeStmt{conn: fc, sql: "SELECT"}
	sl.request = &Request{Type: OpQuery}
	sl.response = *g.queryBatch(context.Background(), sl)

	first := sl.response
	require.Equal(t, RespRows, first.Kind)
	require.Equal(t, RowsPart, first.Marker)
	require.NotNil(t, sl.cursor)

	var flushed []*Response
	g.flush = func(r *Response) {
		cp := *r
		flushed = append(flushed, &cp)
	}

	g.Flushed(&sl.response)
	require.Len(t, flushed, 1)
	second := flushed[0]
	require.Equal(t, RespRows, second.Kind)
	require.Equal(t, RowsPart, second.Marker)
	require.NotNil(t, sl.cursor)

	g.Flushed(&sl.response)
	require.Len(t, flushed, 2)
	third := flushed[1]
	require.Equal(t, RespRows, third.Kind)
	require.Equal(t, RowsDone, third.Marker)
	require.Nil(t, sl.cursor)
	require.True(t, sl.busy())

	g.Flushed(&sl.response)
	require.False(t, sl.busy())
	require.Len(t, flushed, 2) // final call only releases the slot, no new batch

	var all []byte
	all = append(all, first.Rows...)
	all = append(all, second.Rows...)
	all = append(all, third.Rows...)
	require.Equal(t, strings.Repeat("1,", rowCount), string(all))
}

func TestInterruptMidStream(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})
	handleAndFlush(t, g, &Request{Type: OpExec, DBID: 0, StmtID: 0, Params: []Param{{Value: 1}}})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "SELECT * FROM t"})

	sl := &g.slots[0]
	sl.cursor = &fakeStmt{conn: g.db.conn.(*fakeConn), sql: "SELECT"}
	sl.request = &Request{Type: OpQuery}

	resp := handleAndFlush(t, g, &Request{Type: OpInterrupt})
	require.Equal(t, RespEmpty, resp.Kind)
	require.Nil(t, sl.cursor)
	require.Nil(t, sl.request)
}

func TestSlotBusyRejectsSecondPrepare(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	sl := &g.slots[0]
	sl.request = &Request{Type: OpPrepare}

	code := g.Handle(context.Background(), &Request{Type: OpPrepare, DBID: 0, SQL: "SELECT 1"})
	require.Equal(t, ErrKindProtocol, code)
}

func TestUnknownOpcode(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: Opcode(999)})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindError, resp.Code)
}

func TestExecSQLSingleStatementMatchesPrepareExecFinalize(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	resp := handleAndFlush(t, g, &Request{Type: OpExecSQL, DBID: 0, SQL: "INSERT INTO t VALUES(?)", Params: []Param{{Value: 7}}})
	require.Equal(t, RespResult, resp.Kind)
	require.Equal(t, uint64(1), resp.RowsAffected)
	require.Empty(t, g.db.stmts.slots) // finalized already, table stays empty
}

func TestExecSQLEmptyTailExitsCleanly(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	resp := handleAndFlush(t, g, &Request{Type: OpExecSQL, DBID: 0, SQL: "  "})
	require.Equal(t, RespResult, resp.Kind)
}

func TestWALHookPostponesWhenReaderBusy(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	fc := g.db.conn.(*fakeConn)
	fc.wal.mxFrame = 100
	fc.wal.marks = []uint32{100, 5}
	fc.wal.busy = map[int]bool{1: true}

	g.walHook(context.Background(), g.db, g.options.CheckpointThreshold+1)
	require.Equal(t, 0, cluster.checkpoints)
}

func TestWALHookSkipsBelowThreshold(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	g.walHook(context.Background(), g.db, g.options.CheckpointThreshold-1)
	require.Equal(t, 0, cluster.checkpoints)
}

func TestWALHookCheckpointsWhenReadersIdle(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})

	fc := g.db.conn.(*fakeConn)
	fc.wal.mxFrame = 100
	fc.wal.marks = []uint32{100, 100}

	g.walHook(context.Background(), g.db, g.options.CheckpointThreshold+1)
	require.Equal(t, 1, cluster.checkpoints)
}

func TestHeartbeatIsMonotone(t *testing.T) {
	cluster := &fakeCluster{servers: []Server{{ID: 1, Address: "a"}}}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpHeartbeat, Timestamp: 10})
	require.Equal(t, RespServers, resp.Kind)
	require.EqualValues(t, 10, g.heartbeat)

	handleAndFlush(t, g, &Request{Type: OpHeartbeat, Timestamp: 20})
	require.EqualValues(t, 20, g.heartbeat)
}

func TestHeartbeatPropagatesServersFailureCode(t *testing.T) {
	cluster := &fakeCluster{serversErr: &EngineError{Code: ErrKindNotFound, Message: "peer directory unavailable"}}
	g, _ := newTestGateway(t, cluster)

	resp := handleAndFlush(t, g, &Request{Type: OpHeartbeat, Timestamp: 10})
	require.Equal(t, RespFailure, resp.Kind)
	require.Equal(t, ErrKindNotFound, resp.Code)
	require.Equal(t, "peer directory unavailable", resp.Message)
	require.EqualValues(t, 0, g.heartbeat)
}

func TestAcceptReflectsSlotOccupancy(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	require.True(t, g.Accept(OpPrepare))
	require.True(t, g.Accept(OpHeartbeat))

	g.slots[0].request = &Request{Type: OpPrepare}
	require.False(t, g.Accept(OpPrepare))
	require.True(t, g.Accept(OpHeartbeat))
}

func TestCloseIsIdempotent(t *testing.T) {
	cluster := &fakeCluster{}
	g, _ := newTestGateway(t, cluster)
	handleAndFlush(t, g, &Request{Type: OpOpen, Name: "test"})
	handleAndFlush(t, g, &Request{Type: OpPrepare, DBID: 0, SQL: "INSERT INTO t VALUES(?)"})

	g.Close()
	g.Close()
	require.Nil(t, g.db)
}
