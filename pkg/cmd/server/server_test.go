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

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/config"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestDefaultCfg(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{}))
	conf, err := o.loadAndVerifyServerConfig(cmd)
	require.Nil(t, err)

	defaultCfg := config.GetDefaultServerConfig()
	require.Nil(t, defaultCfg.ValidateAndAdjust())
	require.Equal(t, defaultCfg, conf)
}

func TestParseCfg(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{
		"--addr", "127.5.5.1:8833",
		"--log-file", "/root/poolmgr.log",
		"--log-level", "debug",
		"--processing-units", "8",
		"--resources", "/etc/poolmgr/resources.toml",
		"--shutdown-timeout", "1m",
	}))
	conf, err := o.loadAndVerifyServerConfig(cmd)
	require.Nil(t, err)
	require.Equal(t, &config.ServerConfig{
		Addr:     "127.5.5.1:8833",
		LogFile:  "/root/poolmgr.log",
		LogLevel: "debug",
		Log: &config.LogConfig{
			File: &config.LogFileConfig{MaxSize: 300},
		},
		ProcessingUnits: 8,
		ResourceFile:    "/etc/poolmgr/resources.toml",
		ShutdownTimeout: config.TomlDuration(time.Minute),
	}, conf)
}

func TestDecodeCfg(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "poolmgr.toml")
	configContent := `
addr = "128.0.0.1:1234"
log-level = "warn"
processing-units = 2
shutdown-timeout = "10s"

[log.file]
max-size = 200
max-days = 1
max-backups = 1
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--config", configPath, "--processing-units", "6"}))

	conf, err := o.loadAndVerifyServerConfig(cmd)
	require.Nil(t, err)
	require.Equal(t, "128.0.0.1:1234", conf.Addr)
	require.Equal(t, "warn", conf.LogLevel)
	// flags win over the file
	require.Equal(t, 6, conf.ProcessingUnits)
	require.Equal(t, config.TomlDuration(10*time.Second), conf.ShutdownTimeout)
	require.Equal(t, &config.LogFileConfig{MaxSize: 200, MaxDays: 1, MaxBackups: 1}, conf.Log.File)
}

func TestDecodeUnknownCfg(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "poolmgr.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("unknown = 1\n[log.file]\nfoo = 2\n"), 0o644))

	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--config", configPath}))

	_, err := o.loadAndVerifyServerConfig(cmd)
	require.Regexp(t, ".*unknown configuration options: unknown, log.file.foo.*", err)
}

func TestAddUnknownFlag(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Regexp(t, ".*unknown flag: --pd.*", cmd.ParseFlags([]string{"--pd="}).Error())
}

var poolSizeMetric = regexp.MustCompile(`poolmgr_thread_pool_pool_size\{service="io-pool"\}`)

const testResources = `
[[pool]]
type = "bounded-queue-thread-pool"
name = "io-pool"
max-threads = { count = 2, per-cpu = 1 }
`

func TestServerRun(t *testing.T) {
	resources := filepath.Join(t.TempDir(), "resources.toml")
	require.NoError(t, os.WriteFile(resources, []byte(testResources), 0o644))

	conf := config.GetDefaultServerConfig()
	conf.Addr = "127.0.0.1:0"
	conf.ProcessingUnits = 2
	conf.ResourceFile = resources
	require.NoError(t, conf.ValidateAndAdjust())

	srv, err := newServer(conf, nil, promutil.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, srv.listen())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.run(ctx)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	url := fmt.Sprintf("http://%s/metrics", srv.listener.Addr())
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK &&
			poolSizeMetric.Match(body)
	}, 5*time.Second, 10*time.Millisecond)

	pool, ok := srv.rt.Container.Lookup("io-pool")
	require.True(t, ok)
	require.NotNil(t, pool)

	cancel()
	err = <-errCh
	require.Equal(t, context.Canceled, errors.Cause(err))
	require.Empty(t, srv.rt.Container.Services())
}

func TestServerBootFailure(t *testing.T) {
	resources := filepath.Join(t.TempDir(), "resources.toml")
	require.NoError(t, os.WriteFile(resources, []byte("[[pool]]\ntype = \"bounded-queue-thread-pool\"\nname = \"p\"\n"), 0o644))

	conf := config.GetDefaultServerConfig()
	conf.Addr = "127.0.0.1:0"
	conf.ResourceFile = resources
	require.NoError(t, conf.ValidateAndAdjust())

	srv, err := newServer(conf, nil, promutil.NewRegistry())
	require.NoError(t, err)
	err = srv.run(context.Background())
	require.Error(t, err)
	require.Empty(t, srv.rt.Container.Services())
}
