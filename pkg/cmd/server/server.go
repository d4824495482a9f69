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
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/clock"
	"github.com/pingcap/poolmgr/pkg/cmd/util"
	"github.com/pingcap/poolmgr/pkg/config"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// options defines flags for the `server` command.
type options struct {
	serverConfigFilePath string

	serverConfig *config.ServerConfig
}

// newOptions creates new options for the `server` command.
func newOptions() *options {
	return &options{
		serverConfig: config.GetDefaultServerConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultServerConfig := config.GetDefaultServerConfig()
	cmd.Flags().StringVar(&o.serverConfig.Addr, "addr", defaultServerConfig.Addr, "Set the listening address of the metrics endpoint")
	cmd.Flags().StringVar(&o.serverConfig.LogFile, "log-file", defaultServerConfig.LogFile, "log file path")
	cmd.Flags().StringVar(&o.serverConfig.LogLevel, "log-level", defaultServerConfig.LogLevel, "log level (etc: debug|info|warn|error)")
	cmd.Flags().IntVar(&o.serverConfig.ProcessingUnits, "processing-units", defaultServerConfig.ProcessingUnits, "number of processing units pools are sized against, 0 to detect")
	cmd.Flags().StringVar(&o.serverConfig.ResourceFile, "resources", defaultServerConfig.ResourceFile, "Path of the resource file installed at boot")
	cmd.Flags().DurationVar((*time.Duration)(&o.serverConfig.ShutdownTimeout), "shutdown-timeout", time.Duration(defaultServerConfig.ShutdownTimeout), "how long to wait for pools to drain on shutdown")

	cmd.Flags().StringVar(&o.serverConfigFilePath, "config", "", "Path of the configuration file")
}

func (o *options) run(cmd *cobra.Command) error {
	conf, err := o.loadAndVerifyServerConfig(cmd)
	if err != nil {
		return errors.Trace(err)
	}

	cancel := util.InitCmd(cmd, conf.LogutilConfig())
	defer cancel()
	// The run loop below returns on cancellation, so there is nothing else
	// to wait for before the context is canceled.
	util.InitSignalHandling(func() <-chan struct{} {
		done := make(chan struct{})
		close(done)
		return done
	}, cancel)

	srv, err := newServer(conf, nil, nil)
	if err != nil {
		return errors.Trace(err)
	}
	err = srv.run(util.GetDefaultContext())
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run server", zap.String("error", errors.ErrorStack(err)))
		return errors.Annotate(err, "run server")
	}
	log.Info("poolmgr server exits successfully")
	return nil
}

func (o *options) loadAndVerifyServerConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	conf := config.GetDefaultServerConfig()
	if len(o.serverConfigFilePath) > 0 {
		if err := util.StrictDecodeFile(o.serverConfigFilePath, "poolmgr server", conf); err != nil {
			return nil, err
		}
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "addr":
			conf.Addr = o.serverConfig.Addr
		case "log-file":
			conf.LogFile = o.serverConfig.LogFile
		case "log-level":
			conf.LogLevel = o.serverConfig.LogLevel
		case "processing-units":
			conf.ProcessingUnits = o.serverConfig.ProcessingUnits
		case "resources":
			conf.ResourceFile = o.serverConfig.ResourceFile
		case "shutdown-timeout":
			conf.ShutdownTimeout = o.serverConfig.ShutdownTimeout
		case "config":
			// do nothing
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})
	if err := conf.ValidateAndAdjust(); err != nil {
		return nil, errors.Trace(err)
	}
	if conf.ResourceFile == "" {
		cmd.Printf(color.HiYellowString("[WARN] no resource file is set, the server starts without pools.\n"))
	}
	return conf, nil
}

// server boots the configured resources and serves their metrics until its
// context is canceled.
type server struct {
	conf *config.ServerConfig
	rt   *util.Runtime

	listener net.Listener
}

func newServer(conf *config.ServerConfig, clk clock.Clock, metrics *promutil.Registry) (*server, error) {
	rt, err := util.NewRuntime(conf, clk, metrics)
	if err != nil {
		return nil, err
	}
	return &server{conf: conf, rt: rt}, nil
}

// listen binds the metrics endpoint. run calls it when it was not called
// before.
func (s *server) listen() error {
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.conf.Addr)
	if err != nil {
		return errors.Annotatef(err, "listen on %s", s.conf.Addr)
	}
	s.listener = l
	return nil
}

func (s *server) run(ctx context.Context) (err error) {
	if err := s.listen(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), time.Duration(s.conf.ShutdownTimeout))
		defer cancel()
		if closeErr := s.rt.Close(shutdownCtx); closeErr != nil {
			log.Warn("services did not shut down cleanly", zap.Error(closeErr))
			if err == nil || errors.Cause(err) == context.Canceled {
				err = closeErr
			}
		}
	}()

	if err := s.rt.Boot(ctx, s.conf.ResourceFile); err != nil {
		_ = s.listener.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promutil.HTTPHandler(s.rt.Metrics))
	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving metrics", zap.Stringer("addr", s.listener.Addr()))
		if err := httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			return errors.Trace(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(gctx.Err())
	})
	return g.Wait()
}

// NewCmdServer creates the `server` command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a poolmgr server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
