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

// Package jsoncodec is a newline-delimited JSON stand-in for the real
// wire codec, which is out of scope for this module (framing and
// varint/text encoding belong to the SQL engine's own client protocol).
// It exists so pkg/service/gateway has a concrete Codec to run the
// gateway core end-to-end against; a production deployment supplies its
// own Codec implementing the engine's actual client protocol instead.
package jsoncodec

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	coregateway "github.com/pingcap/tidb-lite/pkg/gateway"
)

// Codec implements service/gateway.Codec by reading and writing one JSON
// object per line.
type Codec struct {
	mu       sync.Mutex
	readers  map[net.Conn]*bufio.Reader
	readerMu sync.Mutex
}

// New creates a jsoncodec.Codec.
func New() *Codec {
	return &Codec{readers: make(map[net.Conn]*bufio.Reader)}
}

func (c *Codec) readerFor(conn net.Conn) *bufio.Reader {
	c.readerMu.Lock()
	defer c.readerMu.Unlock()
	r, ok := c.readers[conn]
	if !ok {
		r = bufio.NewReader(conn)
		c.readers[conn] = r
	}
	return r
}

// ReadRequest reads and decodes the next line as a coregateway.Request.
func (c *Codec) ReadRequest(conn net.Conn) (*coregateway.Request, error) {
	r := c.readerFor(conn)
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}

	var req coregateway.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteResponse encodes resp as one JSON line. Writes are serialized
// since streaming batches for one connection are written by the same
// goroutine but Flushed may re-enter from a different call stack depth.
func (c *Codec) WriteResponse(conn net.Conn, resp *coregateway.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

var _ interface {
	ReadRequest(net.Conn) (*coregateway.Request, error)
	WriteResponse(net.Conn, *coregateway.Response) error
} = (*Codec)(nil)
