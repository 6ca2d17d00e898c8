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

import "context"

// NoopLocal is a LocalCluster that always succeeds. The replication log
// that actually executes a barrier read or a distributed checkpoint is
// an external collaborator this module does not implement; NoopLocal
// stands in for it so a leader node can be exercised end-to-end without
// one wired in.
type NoopLocal struct{}

func (NoopLocal) Barrier(ctx context.Context) error                        { return nil }
func (NoopLocal) Checkpoint(ctx context.Context, localHandle uint64) error { return nil }
func (NoopLocal) Register(ctx context.Context, localHandle uint64)         {}

var _ LocalCluster = NoopLocal{}
