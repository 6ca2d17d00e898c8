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

	"go.uber.org/zap"
)

// handleOpen implements the OPEN opcode. A gateway holds at most one DB
// handle for its whole lifetime; a second OPEN is a protocol-level BUSY
// error, not an engine failure.
func (g *Gateway) handleOpen(ctx context.Context, req *Request) *Response {
	if g.db != nil {
		return errBusyOpen()
	}

	conn, err := g.newConn(ctx, req.Name, req.Flags, firstNonEmpty(req.VFS, g.options.VFS), g.options)
	if err != nil {
		return failureFromEngine(err)
	}

	db := &dbHandle{id: 0, conn: conn}
	g.db = db

	conn.InstallWALHook(func(frameCount uint32) {
		g.walHook(context.Background(), db, frameCount)
	})

	g.cluster.Register(ctx, uint64(db.id))
	g.logger.Info("db opened", zap.String("name", req.Name))
	return &Response{Kind: RespDB, DBID: db.id}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
