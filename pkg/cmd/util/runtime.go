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

package util

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/clock"
	"github.com/pingcap/poolmgr/pkg/config"
	"github.com/pingcap/poolmgr/pkg/controller"
	"github.com/pingcap/poolmgr/pkg/deps"
	"github.com/pingcap/poolmgr/pkg/hostinfo"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/threads"
	"go.uber.org/zap"
)

// Runtime wires the service registry, the management controller and the
// threads subsystem together.
type Runtime struct {
	Container  *registry.Container
	Controller *controller.Controller
	Metrics    *promutil.Registry
	Host       hostinfo.Provider
}

// NewRuntime creates a Runtime sized against conf.ProcessingUnits, or the
// detected processing units when it is zero. Nil clk and metrics select the
// real clock and the global registry.
func NewRuntime(conf *config.ServerConfig, clk clock.Clock, metrics *promutil.Registry) (*Runtime, error) {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = promutil.GlobalRegistry()
	}
	rt := &Runtime{
		Metrics: metrics,
		Host:    hostinfo.New(conf.ProcessingUnits),
	}

	d := deps.NewDeps()
	if err := d.Provide(func() hostinfo.Provider { return rt.Host }); err != nil {
		return nil, errors.Trace(err)
	}
	if err := d.Provide(func() clock.Clock { return clk }); err != nil {
		return nil, errors.Trace(err)
	}
	if err := d.Supply(rt.Metrics); err != nil {
		return nil, errors.Trace(err)
	}

	handlers := controller.NewHandlerTable()
	if err := threads.Register(handlers); err != nil {
		return nil, errors.Trace(err)
	}
	rt.Container = registry.NewContainer(d)
	rt.Controller = controller.New(rt.Container, handlers, clk)
	return rt, nil
}

// Boot installs the resources listed in a resource file as one composite
// operation. An empty path is a no-op.
func (rt *Runtime) Boot(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	resources, err := config.LoadResourceFile(path)
	if err != nil {
		return err
	}
	ops, err := resources.Operations()
	if err != nil {
		return err
	}
	if err := rt.Controller.Execute(ctx, ops...); err != nil {
		return errors.Annotatef(err, "boot resources from %s", path)
	}
	log.Info("resources booted",
		zap.String("file", path),
		zap.Int("operations", len(ops)),
		zap.Int("processingUnits", rt.Host.AvailableProcessors()),
		zap.Int("services", len(rt.Container.Services())))
	return nil
}

// Close removes every running service.
func (rt *Runtime) Close(ctx context.Context) error {
	return errors.Trace(rt.Container.Shutdown(ctx))
}
