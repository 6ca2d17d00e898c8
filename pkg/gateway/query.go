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

import "context"

// batchBudget bounds how many row bytes queryBatch accepts into one ROWS
// response before it stops and marks the batch PART. The statement
// module (Statement.Step) enforces the actual per-row encoding; this is
// only the ceiling at which the gateway itself stops asking for more.
const batchBudget = 64 * 1024

// handleQuery implements QUERY: bind parameters, then enter batch
// streaming. Any suspended cursor is stored back in slot 0.
func (g *Gateway) handleQuery(ctx context.Context, req *Request) *Response {
	if resp := g.barrier(ctx); resp != nil {
		return resp
	}
	db, resp := g.lookupDB(req.DBID)
	if resp != nil {
		return resp
	}
	stmt, resp := g.lookupStmt(db, req.StmtID)
	if resp != nil {
		return resp
	}
	if err := stmt.Bind(req.Params); err != nil {
		return failureFromEngine(err)
	}

	sl := &g.slots[0]
	sl.setCursor(stmt)
	sl.cursorDB = db.id
	return g.queryBatch(ctx, sl)
}

// handleQuerySQL implements QUERY_SQL: compile the (single) statement,
// bind, and enter batch streaming exactly as QUERY does.
func (g *Gateway) handleQuerySQL(ctx context.Context, req *Request) *Response {
	if resp := g.barrier(ctx); resp != nil {
		return resp
	}
	db, resp := g.lookupDB(req.DBID)
	if resp != nil {
		return resp
	}

	stmt, _, err := db.conn.Prepare(ctx, req.SQL)
	if err != nil {
		return failureFromEngine(err)
	}
	if stmt == nil {
		return failure(ErrKindEngineFailure, "no statement to execute")
	}
	if err := stmt.Bind(req.Params); err != nil {
		_ = stmt.Finalize()
		return failureFromEngine(err)
	}

	sl := &g.slots[0]
	sl.setCursor(stmt)
	sl.cursorDB = db.id
	return g.queryBatch(ctx, sl)
}

// queryBatch drives one ROWS batch out of the slot's suspended cursor. It
// is called both from the initial QUERY/QUERY_SQL dispatch and again from
// Flushed for every subsequent PART, until the cursor reports DONE or an
// error.
//
// On any step result other than ROW/DONE, the response buffer accumulated
// so far is discarded (rewound to empty) rather than flushed
// partially-written, addressing the wire protocol's documented TODO about
// resetting partially-written message bytes on error.
func (g *Gateway) queryBatch(ctx context.Context, sl *slot) *Response {
	stmt := sl.cursor
	buf := make([]byte, 0, batchBudget)

	for {
		result, out, err := stmt.Step(ctx, buf, batchBudget-len(buf))
		if err != nil {
			sl.setCursor(nil)
			_ = stmt.Finalize()
			return failureFromEngine(err)
		}

		switch result {
		case StepRow:
			buf = out
			if len(buf) >= batchBudget {
				return &Response{Kind: RespRows, Rows: buf, Marker: RowsPart}
			}
		case StepDone:
			sl.setCursor(nil)
			return &Response{Kind: RespRows, Rows: out, Marker: RowsDone}
		default:
			sl.setCursor(nil)
			_ = stmt.Finalize()
			return failure(ErrKindEngineFailure, "unexpected statement step result")
		}
	}
}
