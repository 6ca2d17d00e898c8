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

package clusterrpc

import (
	"context"

	"github.com/pingcap/tidb-lite/pkg/gateway"
)

// Cluster is the node-wide gateway.Cluster: it answers Leader/Servers out
// of the election directly, and executes Barrier/Checkpoint/Register
// against local when this node holds the election, forwarding to the
// leader over gRPC otherwise. Every gateway.Gateway on this node shares
// one Cluster instance, since leadership is a node-wide fact, not a
// per-connection one.
type Cluster struct {
	election *EtcdElection
	local    LocalCluster
	client   *Client
}

// NewCluster builds a Cluster that dispatches onto local when this node
// is leader, or forwards to the leader via a gRPC Client otherwise.
func NewCluster(election *EtcdElection, local LocalCluster) *Cluster {
	return &Cluster{
		election: election,
		local:    local,
		client:   NewClient(election),
	}
}

func (c *Cluster) Leader(ctx context.Context) (string, bool) {
	return c.election.Leader(ctx)
}

func (c *Cluster) Servers(ctx context.Context) ([]gateway.Server, *gateway.EngineError) {
	servers, err := c.election.Peers(ctx)
	if err != nil {
		return nil, &gateway.EngineError{Code: gateway.ErrKindEngineFailure, Message: err.Error()}
	}
	return servers, nil
}

func (c *Cluster) Register(ctx context.Context, localHandle uint64) {
	if c.election.IsLeader() {
		c.local.Register(ctx, localHandle)
		return
	}
	c.client.Register(ctx, localHandle)
}

func (c *Cluster) Barrier(ctx context.Context) *gateway.EngineError {
	if c.election.IsLeader() {
		if err := c.local.Barrier(ctx); err != nil {
			return &gateway.EngineError{Code: gateway.ErrKindBarrierFailure, Message: err.Error()}
		}
		return nil
	}
	return c.client.Barrier(ctx)
}

func (c *Cluster) Checkpoint(ctx context.Context, localHandle uint64) error {
	if c.election.IsLeader() {
		return c.local.Checkpoint(ctx, localHandle)
	}
	return c.client.Checkpoint(ctx, localHandle)
}

var _ gateway.Cluster = (*Cluster)(nil)
