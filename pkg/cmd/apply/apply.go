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

package apply

import (
	"context"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/clock"
	"github.com/pingcap/poolmgr/pkg/cmd/util"
	"github.com/pingcap/poolmgr/pkg/config"
	"github.com/pingcap/poolmgr/pkg/controller"
	"github.com/pingcap/poolmgr/pkg/logutil"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/threads"
	"github.com/spf13/cobra"
)

// options defines flags for the `apply` command.
type options struct {
	resourceFile    string
	opsFile         string
	processingUnits int
	logLevel        string
}

// newOptions creates new options for the `apply` command.
func newOptions() *options {
	return &options{}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.resourceFile, "resources", "", "Path of the resource file installed before the operations run")
	cmd.Flags().StringVar(&o.opsFile, "ops", "", "Path of a JSON array of operations, - for stdin")
	cmd.Flags().IntVar(&o.processingUnits, "processing-units", 0, "number of processing units pools are sized against, 0 to detect")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "warn", "log level (etc: debug|info|warn|error)")
	// the possible error returned from MarkFlagRequired is `no such flag`
	cmd.MarkFlagRequired("ops") //nolint:errcheck
}

func (o *options) readOperations(cmd *cobra.Command) ([]controller.Operation, error) {
	if o.opsFile == "-" {
		return controller.DecodeOperations(cmd.InOrStdin())
	}
	f, err := os.Open(o.opsFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return controller.DecodeOperations(f)
}

// run boots the resources, executes the operations as one composite
// operation and prints the services running afterwards.
func (o *options) run(ctx context.Context, cmd *cobra.Command, clk clock.Clock, metrics *promutil.Registry) error {
	ops, err := o.readOperations(cmd)
	if err != nil {
		return err
	}

	conf := config.GetDefaultServerConfig()
	conf.ProcessingUnits = o.processingUnits
	rt, err := util.NewRuntime(conf, clk, metrics)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close(context.WithoutCancel(ctx))
	}()

	if err := rt.Boot(ctx, o.resourceFile); err != nil {
		return err
	}
	before := rt.Container.Services()

	applyErr := rt.Controller.Execute(ctx, ops...)
	if applyErr != nil {
		cmd.Printf("%s %v\n", color.RedString("rolled back:"), applyErr)
	} else {
		cmd.Printf("%s %d operation(s)\n", color.GreenString("applied:"), len(ops))
	}
	printServices(cmd, rt.Container, before)
	return applyErr
}

func printServices(cmd *cobra.Command, c *registry.Container, before []registry.ServiceName) {
	existed := make(map[registry.ServiceName]struct{}, len(before))
	for _, name := range before {
		existed[name] = struct{}{}
	}
	for _, name := range c.Services() {
		desc, ok := c.Descriptor(name)
		if !ok {
			continue
		}
		marker := " "
		if _, ok := existed[name]; !ok {
			marker = color.GreenString("+")
		}
		delete(existed, name)

		line := marker + " " + string(name) + " (" + desc.Kind.String() + ")"
		if len(desc.Dependencies) > 0 {
			deps := make([]string, 0, len(desc.Dependencies))
			for _, dep := range desc.Dependencies {
				deps = append(deps, string(dep))
			}
			line += " -> " + strings.Join(deps, ", ")
		}
		if pool, ok := desc.Service.(*threads.PoolService); ok {
			cfg := pool.Config()
			line += color.HiBlackString(" max=%d core=%d queue=%d", cfg.MaxThreads, cfg.CoreThreads, cfg.QueueLength)
		}
		cmd.Println(line)
	}
	for _, name := range before {
		if _, ok := existed[name]; ok {
			cmd.Println(color.RedString("-") + " " + string(name))
		}
	}
}

// NewCmdApply creates the `apply` command.
func NewCmdApply() *cobra.Command {
	o := newOptions()
	command := &cobra.Command{
		Use:   "apply",
		Short: "Run a batch of operations against booted resources in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cancel := util.InitCmd(cmd, &logutil.Config{Level: o.logLevel})
			defer cancel()
			return o.run(util.GetDefaultContext(), cmd, nil, nil)
		},
	}
	o.addFlags(command)

	return command
}
