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
	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-lite/pkg/service/admin"
	gatewaysvc "github.com/pingcap/tidb-lite/pkg/service/gateway"
)

// Config is the top-level configuration for the gatewayd binary. Each
// section mirrors its owning package's own Config/DefaultConfig
// convention; this struct only aggregates them for TOML loading.
type Config struct {
	LogLevel  string `toml:"log-level"`
	LogFormat string `toml:"log-format"`

	NodeID    uint64 `toml:"node-id"`
	Advertise string `toml:"advertise"`

	Etcd EtcdConfig `toml:"etcd"`

	Gateway gatewaysvc.Config `toml:"gateway"`
	Admin   admin.Config      `toml:"admin"`
}

// EtcdConfig configures the etcd client backing leader election and peer
// discovery.
type EtcdConfig struct {
	Endpoints []string `toml:"endpoints"`
	Prefix    string   `toml:"prefix"`
}

// DefaultConfig returns gatewayd's default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		NodeID:    1,
		Advertise: "127.0.0.1:8080",
		Etcd: EtcdConfig{
			Endpoints: []string{"127.0.0.1:2379"},
			Prefix:    "/gateway/cluster",
		},
		Gateway: gatewaysvc.DefaultConfig(),
		Admin:   admin.DefaultConfig(),
	}
}

// LoadConfig reads and decodes a TOML config file, applying it on top of
// DefaultConfig. An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to decode config file %s", path)
	}
	return cfg, nil
}
