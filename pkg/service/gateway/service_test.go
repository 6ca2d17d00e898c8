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
	"encoding/json"
	"net"
	"testing"
	"time"

	coregateway "github.com/pingcap/tidb-lite/pkg/gateway"
	"github.com/pingcap/tidb-lite/pkg/service"
	"github.com/stretchr/testify/require"
)

// fakeCluster is a minimal coregateway.Cluster with no leader and no
// peers, enough to drive LEADER/CLIENT/HEARTBEAT requests end to end.
type fakeCluster struct{}

func (fakeCluster) Leader(context.Context) (string, bool) { return "", false }
func (fakeCluster) Servers(context.Context) ([]coregateway.Server, *coregateway.EngineError) {
	return nil, nil
}
func (fakeCluster) Register(context.Context, uint64)          {}
func (fakeCluster) Barrier(context.Context) *coregateway.EngineError { return nil }
func (fakeCluster) Checkpoint(context.Context, uint64) error  { return nil }

var _ coregateway.Cluster = fakeCluster{}

func lineCodec() Codec { return jsonLineCodec{} }

// jsonLineCodec is a self-contained newline-delimited JSON codec used only
// by this test, so the test doesn't depend on pkg/gateway/jsoncodec.
type jsonLineCodec struct{}

func (jsonLineCodec) ReadRequest(conn net.Conn) (*coregateway.Request, error) {
	dec := json.NewDecoder(conn)
	var req coregateway.Request
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (jsonLineCodec) WriteResponse(conn net.Conn, resp *coregateway.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := New(fakeCluster{}, lineCodec(), func(context.Context, string, uint32, string, coregateway.Options) (coregateway.Conn, *coregateway.EngineError) {
		return nil, &coregateway.EngineError{Code: coregateway.ErrKindEngineFailure, Message: "no engine in test"}
	})
	svc.config.Host = "127.0.0.1"
	svc.config.Port = 0
	return svc
}

func TestServiceStartAcceptsConnections(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Init(context.Background(), service.Options{}))
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	addr := svc.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := coregateway.Request{Type: coregateway.OpHeartbeat, ClientID: 1}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := json.NewDecoder(conn)
	var resp coregateway.Response
	require.NoError(t, dec.Decode(&resp))
	require.Equal(t, coregateway.RespServers, resp.Kind)
}

func TestServiceStopClosesConnections(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Init(context.Background(), service.Options{}))
	require.NoError(t, svc.Start(context.Background()))

	addr := svc.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, svc.Stop(context.Background()))
	require.Equal(t, service.StateStopped, svc.Health().State)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
}

func TestServiceRejectsBeyondMaxConnections(t *testing.T) {
	svc := newTestService(t)
	svc.config.MaxConnections = 1
	require.NoError(t, svc.Init(context.Background(), service.Options{}))
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	addr := svc.listener.Addr().String()
	first, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer first.Close()

	// give the accept loop time to register the first connection
	require.Eventually(t, func() bool {
		return svc.connCount() >= 1
	}, time.Second, 10*time.Millisecond)

	second, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	require.Error(t, err)
}
