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

// Package logutil provides the single background *zap.Logger every
// component in this module logs through, so log format and level are
// controlled from one place (InitLogger) regardless of which package is
// doing the logging.
package logutil

import (
	"os"
	"sync/atomic"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger atomic.Pointer[zap.Logger]

func init() {
	globalLogger.Store(zap.NewNop())
}

// LogConfig controls the background logger's level and encoding.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text" (console)
}

// NewLogConfig returns a LogConfig, mirroring this codebase's existing
// per-binary logging setup convention.
func NewLogConfig(level, format string) LogConfig {
	return LogConfig{Level: level, Format: format}
}

// InitLogger installs the process-wide background logger. Safe to call
// once at process startup; later calls replace the logger atomically.
func InitLogger(cfg LogConfig) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	logger := zap.New(core, zap.AddCaller())
	globalLogger.Store(logger)
	return nil
}

// BgLogger returns the process-wide background logger.
func BgLogger() *zap.Logger {
	return globalLogger.Load()
}
