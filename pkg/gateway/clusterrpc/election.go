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
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-lite/pkg/gateway"
	"github.com/pingcap/tidb-lite/pkg/util/logutil"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// EtcdElection discovers the cluster leader and peer list using etcd's
// session-leased election primitive, the same lease/keepalive discipline
// this codebase's registry already applies to service discovery.
type EtcdElection struct {
	client *clientv3.Client
	prefix string
	nodeID uint64
	self   string

	mu       sync.RWMutex
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
}

// NewEtcdElection creates an election under prefix, identifying this node
// by nodeID/self (address). Campaign must be called separately to
// actually contest leadership; a node that never campaigns is a
// follower-only observer.
func NewEtcdElection(client *clientv3.Client, prefix string, nodeID uint64, self string) (*EtcdElection, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(15))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd session")
	}
	return &EtcdElection{
		client:   client,
		prefix:   prefix,
		nodeID:   nodeID,
		self:     self,
		session:  session,
		election: concurrency.NewElection(session, prefix+"/leader"),
	}, nil
}

// Campaign blocks until this node becomes leader or ctx is cancelled. Run
// it in its own goroutine; cancel ctx to resign.
func (e *EtcdElection) Campaign(ctx context.Context) error {
	if err := e.election.Campaign(ctx, e.self); err != nil {
		return errors.Wrap(err, "campaign failed")
	}
	e.mu.Lock()
	e.isLeader = true
	e.mu.Unlock()
	logutil.BgLogger().Info("became cluster leader", zap.String("address", e.self))

	go func() {
		select {
		case <-e.session.Done():
		case <-ctx.Done():
			_ = e.election.Resign(context.Background())
		}
		e.mu.Lock()
		e.isLeader = false
		e.mu.Unlock()
	}()
	return nil
}

// IsLeader reports whether this node currently holds the election.
func (e *EtcdElection) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// Leader returns the current leader's address.
func (e *EtcdElection) Leader(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := e.election.Leader(ctx)
	if err != nil {
		return "", false
	}
	if len(resp.Kvs) == 0 {
		return "", false
	}
	return string(resp.Kvs[0].Value), true
}

// Peers lists the live members registered under prefix's node namespace.
func (e *EtcdElection) Peers(ctx context.Context) ([]gateway.Server, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := e.client.Get(ctx, e.prefix+"/nodes/", clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cluster nodes")
	}

	servers := make([]gateway.Server, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		servers = append(servers, gateway.Server{Address: string(kv.Value)})
	}
	return servers, nil
}

// Announce publishes this node's address under the node namespace, leased
// to the election's session so it disappears automatically on crash.
func (e *EtcdElection) Announce(ctx context.Context) error {
	_, err := e.client.Put(ctx, e.prefix+"/nodes/"+e.self, e.self, clientv3.WithLease(e.session.Lease()))
	return errors.Wrap(err, "failed to announce node")
}

// Close releases the underlying etcd session.
func (e *EtcdElection) Close() error {
	return e.session.Close()
}
