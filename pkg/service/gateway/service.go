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

// Package gateway is the ambient TCP front for pkg/gateway: it owns the
// accept loop and the one-goroutine-per-connection lifecycle, and hands
// each accepted net.Conn a fresh *gateway.Gateway plus a Codec to read
// requests from and write responses to. The wire framing itself — how
// bytes on the socket become a gateway.Request and back — is supplied by
// the Codec implementation the caller injects; this package only owns the
// service lifecycle (Init/Start/Stop/Health) around that loop.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pingcap/errors"
	coregateway "github.com/pingcap/tidb-lite/pkg/gateway"
	"github.com/pingcap/tidb-lite/pkg/service"
	"github.com/pingcap/tidb-lite/pkg/util/logutil"
	"go.uber.org/zap"
)

// Codec decodes one request and encodes one response for a single
// connection. Implementations own the wire framing; ReadRequest returns
// io.EOF when the client has closed its side cleanly.
type Codec interface {
	ReadRequest(conn net.Conn) (*coregateway.Request, error)
	WriteResponse(conn net.Conn, resp *coregateway.Response) error
}

// ConnFactory opens the abstract local SQL connection a gateway.Gateway
// needs to serve OPEN; it is the same factory shape gateway.Config.NewConn
// expects.
type ConnFactory func(ctx context.Context, name string, flags uint32, vfs string, opts coregateway.Options) (coregateway.Conn, *coregateway.EngineError)

// Config contains configuration for the connection-dispatch gateway
// service.
type Config struct {
	// Host is the host to listen on.
	Host string `toml:"host" json:"host"`

	// Port is the client port to listen on.
	Port uint `toml:"port" json:"port"`

	// MaxConnections caps concurrently served connections. 0 means
	// unbounded.
	MaxConnections int `toml:"max-connections" json:"max-connections"`

	// Gateway carries the per-connection Gateway options (heartbeat
	// timeout, checkpoint threshold, page size, VFS name).
	Gateway coregateway.Options `toml:"gateway" json:"gateway"`
}

// DefaultConfig returns the default gateway service configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		MaxConnections: 0,
		Gateway:        coregateway.DefaultOptions(),
	}
}

// Service is the ambient TCP-accepting wrapper around pkg/gateway's
// per-connection state machine.
type Service struct {
	*service.BaseService

	mu      sync.Mutex
	config  Config
	cluster coregateway.Cluster
	codec   Codec
	newConn ConnFactory

	listener net.Listener
	conns    map[net.Conn]*coregateway.Gateway
	wg       sync.WaitGroup

	stopped chan struct{}
}

// New creates a gateway service. cluster backs every accepted connection's
// Cluster collaborator; codec supplies wire framing; newConn opens the
// local SQL connection each OPEN request needs.
func New(cluster coregateway.Cluster, codec Codec, newConn ConnFactory) *Service {
	return &Service{
		BaseService: service.NewBaseService(service.ServiceGateway),
		config:      DefaultConfig(),
		cluster:     cluster,
		codec:       codec,
		newConn:     newConn,
		conns:       make(map[net.Conn]*coregateway.Gateway),
		stopped:     make(chan struct{}),
	}
}

// Init initializes the gateway service.
func (s *Service) Init(_ context.Context, opts service.Options) error {
	s.InitBase(opts)

	if cfg, ok := opts.Config.(*Config); ok {
		s.config = *cfg
	} else if cfg, ok := opts.Config.(Config); ok {
		s.config = cfg
	}

	s.SetHealth(service.HealthStatus{State: service.StateStarting})
	return nil
}

// Start binds the listener and begins accepting connections in the
// background.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.SetHealth(service.HealthStatus{State: service.StateUnhealthy, Message: err.Error()})
		return errors.Wrapf(err, "gateway service failed to bind %s", addr)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.SetHealth(service.HealthStatus{State: service.StateHealthy})
	return nil
}

// Stop closes the listener and every live connection, then waits for the
// accept loop and connection goroutines to exit.
func (s *Service) Stop(_ context.Context) error {
	s.mu.Lock()
	s.SetHealth(service.HealthStatus{State: service.StateStopping})
	close(s.stopped)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn, gw := range s.conns {
		gw.Close()
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.SetHealth(service.HealthStatus{State: service.StateStopped})
	s.mu.Unlock()
	return nil
}

func (s *Service) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return
			default:
				logutil.BgLogger().Warn("gateway accept failed", zap.Error(err))
				return
			}
		}

		if s.config.MaxConnections > 0 && s.connCount() >= s.config.MaxConnections {
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Service) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ConnStats implements service.ConnStats so the health aggregator can
// report how many client connections this node is currently serving.
func (s *Service) ConnStats() map[string]int {
	return map[string]int{"active": s.connCount()}
}

// serve runs one connection's single-threaded request loop: decode a
// request, hand it to the gateway, write whatever gets flushed, tell the
// gateway it was flushed, repeat until the client disconnects or the
// service stops.
func (s *Service) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	logger := logutil.BgLogger().With(zap.String("remote", conn.RemoteAddr().String()))

	var gw *coregateway.Gateway
	gw = coregateway.New(coregateway.Config{
		Cluster: s.cluster,
		Options: s.config.Gateway,
		Logger:  logger,
		NewConn: s.newConn,
		Flush: func(resp *coregateway.Response) {
			if err := s.codec.WriteResponse(conn, resp); err != nil {
				logger.Warn("failed to write response", zap.Error(err))
				gw.Aborted(resp)
				return
			}
			gw.Flushed(resp)
		},
	})

	s.mu.Lock()
	s.conns[conn] = gw
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		gw.Close()
	}()

	ctx := context.Background()
	for {
		req, err := s.codec.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debug("connection read error", zap.Error(err))
			}
			return
		}
		gw.Handle(ctx, req)
	}
}

var (
	_ service.Service   = (*Service)(nil)
	_ service.ConnStats = (*Service)(nil)
)
