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

// Package clusterrpc wires gateway.Cluster to a concrete backend: leader
// discovery and peer listing over etcd's own election/session primitives,
// and barrier/checkpoint/register forwarded to the leader over gRPC. This
// is the domain-stack half of the gateway — the distilled gateway core
// never imports it directly, it only consumes the gateway.Cluster
// interface this package implements.
package clusterrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-lite/pkg/gateway"
	"github.com/pingcap/tidb-lite/pkg/util/logutil"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a gRPC-backed gateway.Cluster for a non-leader node: Barrier,
// Checkpoint and Register are forwarded to the current leader; Leader and
// Servers are answered locally out of an Election (see election.go),
// since those never need a round trip once the election has converged.
type Client struct {
	election *EtcdElection
	dialer   func(ctx context.Context, addr string) (*grpc.ClientConn, error)
}

// NewClient builds a Client backed by election for leader/peer discovery.
func NewClient(election *EtcdElection) *Client {
	return &Client{election: election, dialer: dial}
}

func dial(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
}

func (c *Client) Leader(ctx context.Context) (string, bool) {
	return c.election.Leader(ctx)
}

func (c *Client) Servers(ctx context.Context) ([]gateway.Server, *gateway.EngineError) {
	servers, err := c.election.Peers(ctx)
	if err != nil {
		return nil, &gateway.EngineError{Code: gateway.ErrKindEngineFailure, Message: err.Error()}
	}
	return servers, nil
}

func (c *Client) Register(ctx context.Context, localHandle uint64) {
	addr, ok := c.election.Leader(ctx)
	if !ok {
		return
	}
	if _, err := c.call(ctx, addr, "Register", registerRequest{LocalHandle: localHandle}); err != nil {
		logutil.BgLogger().Warn("cluster register RPC failed", zap.Error(err))
	}
}

func (c *Client) Barrier(ctx context.Context) *gateway.EngineError {
	addr, ok := c.election.Leader(ctx)
	if !ok {
		return &gateway.EngineError{Code: gateway.ErrKindBarrierFailure, Message: "no known leader"}
	}
	if _, err := c.call(ctx, addr, "Barrier", barrierRequest{}); err != nil {
		return &gateway.EngineError{Code: gateway.ErrKindBarrierFailure, Message: err.Error()}
	}
	return nil
}

func (c *Client) Checkpoint(ctx context.Context, localHandle uint64) error {
	addr, ok := c.election.Leader(ctx)
	if !ok {
		return errors.New("no known leader")
	}
	_, err := c.call(ctx, addr, "Checkpoint", checkpointRequest{LocalHandle: localHandle})
	return err
}

// call sends req as JSON over conn.Invoke to the leader's cluster RPC
// service (see server.go) and returns the raw reply.
func (c *Client) call(ctx context.Context, addr, method string, req any) ([]byte, error) {
	conn, err := c.dialer(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial cluster leader at %s", addr)
	}
	defer conn.Close()

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal cluster rpc request")
	}

	var resp []byte
	if err := conn.Invoke(ctx, "/gateway.cluster.Cluster/"+method, reqData, &resp); err != nil {
		return nil, errors.Wrapf(err, "cluster rpc %s failed", method)
	}
	return resp, nil
}

type registerRequest struct {
	LocalHandle uint64 `json:"local_handle"`
}

type barrierRequest struct{}

type checkpointRequest struct {
	LocalHandle uint64 `json:"local_handle"`
}

var _ gateway.Cluster = (*Client)(nil)
