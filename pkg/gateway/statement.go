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

// handlePrepare implements PREPARE: compile sql into a fresh statement
// installed in the DB's statement table.
func (g *Gateway) handlePrepare(ctx context.Context, req *Request) *Response {
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

	id := db.stmts.insert(stmt)
	return &Response{Kind: RespStmt, DBID: db.id, StmtID: id, Params: stmt.ParamCount()}
}

// handleExec implements EXEC: bind parameters and run the statement to
// completion.
func (g *Gateway) handleExec(ctx context.Context, req *Request) *Response {
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
	lastInsertID, rowsAffected, err := stmt.Exec(ctx)
	if err != nil {
		return failureFromEngine(err)
	}
	return &Response{Kind: RespResult, LastInsertID: lastInsertID, RowsAffected: rowsAffected}
}

// handleFinalize implements FINALIZE: destroy the statement. Once this
// succeeds, the id is eligible for reuse by a later PREPARE.
func (g *Gateway) handleFinalize(ctx context.Context, req *Request) *Response {
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

	_ = stmt.Finalize()
	db.stmts.remove(req.StmtID)
	return respEmpty
}

// handleExecSQL implements EXEC_SQL: repeatedly prepare-and-execute every
// statement in a multi-statement text, returning only the last
// statement's RESULT. As documented in the wire protocol (and preserved
// here for compatibility), the single caller-supplied parameter tuple is
// applied to every statement compiled from the tail — well-defined only
// for single-statement text.
func (g *Gateway) handleExecSQL(ctx context.Context, req *Request) *Response {
	if resp := g.barrier(ctx); resp != nil {
		return resp
	}
	db, resp := g.lookupDB(req.DBID)
	if resp != nil {
		return resp
	}

	var resultResp *Response
	tail := req.SQL
	for {
		stmt, rest, err := db.conn.Prepare(ctx, tail)
		if err != nil {
			return failureFromEngine(err)
		}
		if stmt == nil {
			// Empty tail: nothing left to execute.
			break
		}
		tail = rest

		if err := stmt.Bind(req.Params); err != nil {
			_ = stmt.Finalize()
			return failureFromEngine(err)
		}
		lastInsertID, rowsAffected, err := stmt.Exec(ctx)
		if err != nil {
			_ = stmt.Finalize()
			return failureFromEngine(err)
		}
		resultResp = &Response{Kind: RespResult, LastInsertID: lastInsertID, RowsAffected: rowsAffected}

		// Finalize errors are swallowed, matching the wire protocol's
		// documented policy for this path.
		_ = stmt.Finalize()

		if tail == "" {
			break
		}
	}

	if resultResp == nil {
		return &Response{Kind: RespResult}
	}
	return resultResp
}
