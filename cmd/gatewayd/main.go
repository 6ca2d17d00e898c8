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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap/tidb-lite/pkg/gateway"
	"github.com/pingcap/tidb-lite/pkg/gateway/clusterrpc"
	"github.com/pingcap/tidb-lite/pkg/gateway/jsoncodec"
	"github.com/pingcap/tidb-lite/pkg/metrics"
	"github.com/pingcap/tidb-lite/pkg/service"
	"github.com/pingcap/tidb-lite/pkg/service/admin"
	gatewaysvc "github.com/pingcap/tidb-lite/pkg/service/gateway"
	svcgrpc "github.com/pingcap/tidb-lite/pkg/service/grpc"
	"github.com/pingcap/tidb-lite/pkg/util/logutil"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

var (
	printVersion = flag.Bool("V", false, "print version information and exit")
	configPath   = flag.String("config", "", "config file path")
)

const versionString = "gatewayd (dev build)"

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Println(versionString)
		os.Exit(0)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logutil.InitLogger(logutil.NewLogConfig(cfg.LogLevel, cfg.LogFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := logutil.BgLogger()
	logger.Info("starting gatewayd", zap.String("version", versionString))

	metrics.InitServiceMetrics()
	metrics.InitGatewayMetrics()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to etcd", zap.Error(err))
	}
	defer etcdClient.Close()

	election, err := clusterrpc.NewEtcdElection(etcdClient, cfg.Etcd.Prefix, cfg.NodeID, cfg.Advertise)
	if err != nil {
		logger.Fatal("failed to create etcd election", zap.Error(err))
	}
	defer election.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := election.Announce(ctx); err != nil {
		logger.Warn("failed to announce node", zap.Error(err))
	}
	go func() {
		if err := election.Campaign(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("leader campaign ended", zap.Error(err))
		}
	}()

	cluster := clusterrpc.NewCluster(election, clusterrpc.NoopLocal{})

	clusterGRPC := svcgrpc.NewServer(cfg.Advertise)
	clusterrpc.NewServer(clusterrpc.NoopLocal{}).RegisterHandler(clusterGRPC)
	if err := clusterGRPC.Start(); err != nil {
		logger.Fatal("failed to start cluster rpc server", zap.Error(err))
	}
	defer clusterGRPC.Stop()

	gatewaySvc := gatewaysvc.New(cluster, jsoncodec.New(), unconfiguredEngine)
	adminSvc := admin.New()

	svcCfg := service.DefaultConfig()
	svcCfg.ServiceConfigs[service.ServiceGateway] = cfg.Gateway
	svcCfg.ServiceConfigs[service.ServiceAdmin] = cfg.Admin
	manager, err := service.NewManager(svcCfg)
	if err != nil {
		logger.Fatal("failed to create service manager", zap.Error(err))
	}
	adminSvc.SetManager(manager)

	if err := manager.Register(gatewaySvc); err != nil {
		logger.Fatal("failed to register gateway service", zap.Error(err))
	}
	if err := manager.Register(adminSvc); err != nil {
		logger.Fatal("failed to register admin service", zap.Error(err))
	}

	if err := manager.Start(ctx); err != nil {
		logger.Fatal("failed to start services", zap.Error(err))
	}
	logger.Info("gatewayd started",
		zap.String("gateway_addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)),
		zap.String("admin_addr", fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gatewayd")
	if err := manager.Stop(ctx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("gatewayd stopped")
}

// unconfiguredEngine is the ConnFactory used until a real local SQL
// engine is wired in; the engine and its VFS are external collaborators
// this module does not implement.
func unconfiguredEngine(_ context.Context, name string, _ uint32, _ string, _ gateway.Options) (gateway.Conn, *gateway.EngineError) {
	return nil, &gateway.EngineError{
		Code:    gateway.ErrKindEngineFailure,
		Message: fmt.Sprintf("no local SQL engine configured for database %q", name),
	}
}
