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

package config

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/logutil"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is the default address the metrics endpoint listens on.
	DefaultAddr = "127.0.0.1:8400"
	// DefaultShutdownTimeout bounds how long the server waits for pools to drain.
	DefaultShutdownTimeout = 30 * time.Second
)

var logLevels = []interface{}{"debug", "info", "warn", "warning", "error", "dpanic", "panic", "fatal"}

var defaultServerConfig = &ServerConfig{
	Addr:     DefaultAddr,
	LogFile:  "",
	LogLevel: "info",
	Log: &LogConfig{
		File: &LogFileConfig{
			MaxSize:    300,
			MaxDays:    0,
			MaxBackups: 0,
		},
	},
	ProcessingUnits: 0,
	ShutdownTimeout: TomlDuration(DefaultShutdownTimeout),
}

// ServerConfig is the configuration of a poolmgr server.
type ServerConfig struct {
	Addr     string     `toml:"addr" json:"addr"`
	LogFile  string     `toml:"log-file" json:"log-file"`
	LogLevel string     `toml:"log-level" json:"log-level"`
	Log      *LogConfig `toml:"log" json:"log"`

	// ProcessingUnits overrides the number of processing units pools are
	// sized against. Zero means detect.
	ProcessingUnits int `toml:"processing-units" json:"processing-units"`
	// ResourceFile lists the thread factories and pools installed at boot.
	ResourceFile    string       `toml:"resource-file" json:"resource-file"`
	ShutdownTimeout TomlDuration `toml:"shutdown-timeout" json:"shutdown-timeout"`
}

// LogConfig is the log configuration of the server.
type LogConfig struct {
	File *LogFileConfig `toml:"file" json:"file"`
}

// LogFileConfig is the rotation configuration of the log file.
type LogFileConfig struct {
	MaxSize    int `toml:"max-size" json:"max-size"`
	MaxDays    int `toml:"max-days" json:"max-days"`
	MaxBackups int `toml:"max-backups" json:"max-backups"`
}

// GetDefaultServerConfig returns the default server config
func GetDefaultServerConfig() *ServerConfig {
	return defaultServerConfig.Clone()
}

// Marshal returns the json marshal format of a ServerConfig
func (c *ServerConfig) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", cerror.WrapError(cerror.ErrDecodeFailed, errors.Annotatef(err, "marshal data: %v", c))
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *ServerConfig from json marshal byte slice
func (c *ServerConfig) Unmarshal(data []byte) error {
	err := json.Unmarshal(data, c)
	if err != nil {
		return cerror.WrapError(cerror.ErrDecodeFailed, err, "server config")
	}
	return nil
}

// Clone clones a server config
func (c *ServerConfig) Clone() *ServerConfig {
	str, err := c.Marshal()
	if err != nil {
		log.Panic("failed to marshal server config", zap.Error(err))
	}
	clone := new(ServerConfig)
	if err := clone.Unmarshal([]byte(str)); err != nil {
		log.Panic("failed to unmarshal server config", zap.Error(err))
	}
	return clone
}

// LogutilConfig converts the log settings for logutil.InitLogger.
func (c *ServerConfig) LogutilConfig() *logutil.Config {
	return &logutil.Config{
		File:           c.LogFile,
		Level:          c.LogLevel,
		FileMaxSize:    c.Log.File.MaxSize,
		FileMaxDays:    c.Log.File.MaxDays,
		FileMaxBackups: c.Log.File.MaxBackups,
	}
}

// ValidateAndAdjust validates and adjusts the server configuration
func (c *ServerConfig) ValidateAndAdjust() error {
	defaultCfg := GetDefaultServerConfig()
	if c.Log == nil {
		c.Log = defaultCfg.Log
	}
	if c.Log.File == nil {
		c.Log.File = defaultCfg.Log.File
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultCfg.ShutdownTimeout
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.LogLevel, validation.In(logLevels...)),
		validation.Field(&c.ProcessingUnits, validation.Min(0)),
		validation.Field(&c.ShutdownTimeout, validation.Min(TomlDuration(0))),
	)
	if err != nil {
		return cerror.ErrInvalidServerConfig.GenWithStackByArgs(err.Error())
	}
	err = validation.ValidateStruct(c.Log.File,
		validation.Field(&c.Log.File.MaxSize, validation.Min(0)),
		validation.Field(&c.Log.File.MaxDays, validation.Min(0)),
		validation.Field(&c.Log.File.MaxBackups, validation.Min(0)),
	)
	if err != nil {
		return cerror.ErrInvalidServerConfig.GenWithStackByArgs("log.file: " + err.Error())
	}
	return nil
}

// TomlDuration is a duration with a custom json and toml decoder
type TomlDuration time.Duration

// UnmarshalText is the toml decoder
func (d *TomlDuration) UnmarshalText(text []byte) error {
	stdDuration, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// MarshalText is the toml encoder
func (d TomlDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalJSON is the json decoder
func (d *TomlDuration) UnmarshalJSON(b []byte) error {
	var stdDuration time.Duration
	if err := json.Unmarshal(b, &stdDuration); err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// MarshalJSON is the json encoder
func (d TomlDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d))
}
