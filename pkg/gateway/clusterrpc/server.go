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
	"encoding/json"

	svcgrpc "github.com/pingcap/tidb-lite/pkg/service/grpc"
)

// LocalCluster is the leader-side surface Server dispatches RPCs onto:
// the actual barrier/checkpoint/register machinery the leader's own
// gateway instances run against.
type LocalCluster interface {
	Barrier(ctx context.Context) error
	Checkpoint(ctx context.Context, localHandle uint64) error
	Register(ctx context.Context, localHandle uint64)
}

// Server exposes a LocalCluster's control operations to follower nodes,
// using this codebase's generic gRPC ServiceHandler/MultiMethodHandler
// plumbing rather than a hand-rolled protobuf service.
type Server struct {
	handler *svcgrpc.MultiMethodHandler
}

// NewServer builds a Server dispatching onto local.
func NewServer(local LocalCluster) *Server {
	h := svcgrpc.NewMultiMethodHandler()
	h.Register("Barrier", func(ctx context.Context, _ []byte) ([]byte, error) {
		if err := local.Barrier(ctx); err != nil {
			return nil, err
		}
		return json.Marshal(struct{}{})
	})
	h.Register("Checkpoint", func(ctx context.Context, data []byte) ([]byte, error) {
		var req checkpointRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		if err := local.Checkpoint(ctx, req.LocalHandle); err != nil {
			return nil, err
		}
		return json.Marshal(struct{}{})
	})
	h.Register("Register", func(ctx context.Context, data []byte) ([]byte, error) {
		var req registerRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		local.Register(ctx, req.LocalHandle)
		return json.Marshal(struct{}{})
	})
	return &Server{handler: h}
}

// RegisterHandler wires this server onto a shared *svcgrpc.Server under
// the service name the client dials ("gateway.cluster.Cluster").
func (s *Server) RegisterHandler(grpcServer *svcgrpc.Server) {
	grpcServer.RegisterHandler("gateway.cluster.Cluster", s.handler)
}
