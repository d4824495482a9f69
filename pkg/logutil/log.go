// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLevel   = "info"
	defaultLogMaxDays = 7
	defaultLogMaxSize = 512 // MB
)

// Config serializes log related config in toml/json.
type Config struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log filename, leave empty to disable file log.
	File string `toml:"file" json:"file"`
	// Max size for a single file, in MB.
	FileMaxSize int `toml:"max-size" json:"max-size"`
	// Max log keep days, default is never deleting.
	FileMaxDays int `toml:"max-days" json:"max-days"`
	// Maximum number of old log files to retain.
	FileMaxBackups int `toml:"max-backups" json:"max-backups"`
	// SamplingInitial and SamplingThereafter control sampling of repeated
	// messages. Sampling is off when both are zero.
	SamplingInitial    int `toml:"sampling-initial" json:"sampling-initial"`
	SamplingThereafter int `toml:"sampling-thereafter" json:"sampling-thereafter"`
}

// Adjust adjusts config
func (cfg *Config) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = defaultLogLevel
	}
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}
	if cfg.FileMaxSize == 0 {
		cfg.FileMaxSize = defaultLogMaxSize
	}
	if cfg.FileMaxDays == 0 {
		cfg.FileMaxDays = defaultLogMaxDays
	}
}

// SetLogLevel changes the log level dynamically.
func SetLogLevel(level string) error {
	oldLevel := log.GetLevel()
	if level == "warning" {
		level = "warn"
	}
	var lv zapcore.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return errors.Trace(err)
	}
	if lv != oldLevel {
		log.SetLevel(lv)
		log.Info("log level changed",
			zap.Stringer("old", oldLevel), zap.Stringer("new", lv))
	}
	return nil
}

// InitLogger initializes logger
func InitLogger(cfg *Config, opts ...zap.Option) error {
	cfg.Adjust()
	pclogConfig := &log.Config{
		Level: cfg.Level,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
	}
	if cfg.SamplingInitial > 0 || cfg.SamplingThereafter > 0 {
		pclogConfig.Sampling = &zap.SamplingConfig{
			Initial:    cfg.SamplingInitial,
			Thereafter: cfg.SamplingThereafter,
		}
	}

	logger, props, err := log.InitLogger(pclogConfig, opts...)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// ZapErrorFilter wraps zap.Error, if err is in given filters, it will return
// a zap.Error(nil) field.
func ZapErrorFilter(err error, filterErrors ...error) zap.Field {
	cause := errors.Cause(err)
	for _, ferr := range filterErrors {
		if cause == ferr {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

type loggerKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return logger
		}
	}
	return log.L()
}
