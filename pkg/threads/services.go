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

package threads

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/clock"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/hostinfo"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/workerpool"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// startEnv is what services take from the registry's dependency container.
// Anything missing falls back to the real host, clock and global registry.
type startEnv struct {
	dig.In

	Host    hostinfo.Provider  `optional:"true"`
	Clock   clock.Clock        `optional:"true"`
	Metrics *promutil.Registry `optional:"true"`
}

func fillEnv(sc *registry.StartContext) (*startEnv, error) {
	env := &startEnv{}
	if sc.Deps != nil {
		if err := sc.Deps.Fill(env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if env.Host == nil {
		env.Host = hostinfo.New(0)
	}
	if env.Clock == nil {
		env.Clock = clock.New()
	}
	if env.Metrics == nil {
		env.Metrics = promutil.GlobalRegistry()
	}
	return env, nil
}

var (
	_ registry.Service         = (*ThreadFactoryService)(nil)
	_ workerpool.ThreadFactory = (*ThreadFactoryService)(nil)
)

// ThreadFactoryService is a running thread factory.
type ThreadFactoryService struct {
	cfg     workerpool.FactoryConfig
	factory *workerpool.GoroutineFactory
}

func newThreadFactoryService(cfg workerpool.FactoryConfig) *ThreadFactoryService {
	return &ThreadFactoryService{cfg: cfg}
}

// Start implements registry.Service.
func (s *ThreadFactoryService) Start(_ context.Context, _ *registry.StartContext) error {
	s.factory = workerpool.NewGoroutineFactory(s.cfg)
	return nil
}

// Stop implements registry.Service. Threads belong to the pools using the
// factory, which are stopped first, so Stop only waits for their threads to
// return.
func (s *ThreadFactoryService) Stop(ctx context.Context) error {
	if s.factory == nil {
		return nil
	}
	if err := s.factory.Wait(ctx); err != nil {
		log.Warn("thread factory stopped with live threads",
			zap.String("name", s.cfg.Name), zap.Int64("alive", s.factory.Alive()), zap.Error(err))
	}
	return nil
}

// NewThread implements workerpool.ThreadFactory.
func (s *ThreadFactoryService) NewThread(fn func(ctx context.Context)) string {
	return s.factory.NewThread(fn)
}

// Config returns the factory configuration.
func (s *ThreadFactoryService) Config() workerpool.FactoryConfig {
	return s.cfg
}

// runningPool is implemented by workerpool.ThreadPool and
// workerpool.ScheduledPool.
type runningPool interface {
	workerpool.Executor
	Shutdown(ctx context.Context) error
	Stats() workerpool.Stats
	Config() workerpool.PoolConfig
	RegisterMetrics(f promutil.Factory)
}

var (
	_ registry.Service    = (*PoolService)(nil)
	_ workerpool.Executor = (*PoolService)(nil)
)

// PoolService is a running thread pool. Its counts are resolved when it
// starts, against the processing units available at that moment.
type PoolService struct {
	params      *PoolParameters
	factoryName registry.ServiceName
	handoffName registry.ServiceName

	name      registry.ServiceName
	pool      runningPool
	scheduled *workerpool.ScheduledPool
	metrics   *promutil.Registry
}

func newPoolService(params *PoolParameters, factoryName, handoffName registry.ServiceName) *PoolService {
	return &PoolService{
		params:      params,
		factoryName: factoryName,
		handoffName: handoffName,
	}
}

// Start implements registry.Service.
func (s *PoolService) Start(_ context.Context, sc *registry.StartContext) error {
	env, err := fillEnv(sc)
	if err != nil {
		return err
	}
	units := env.Host.AvailableProcessors()
	cfg, err := s.params.PoolConfig(units)
	if err != nil {
		return err
	}

	dep, _ := sc.Dependency(s.factoryName)
	factory, ok := dep.(workerpool.ThreadFactory)
	if !ok {
		return cerror.ErrServiceTypeMismatch.GenWithStackByArgs(s.factoryName, "thread factory")
	}
	if s.handoffName != "" {
		dep, _ := sc.Dependency(s.handoffName)
		handoff, ok := dep.(workerpool.Executor)
		if !ok {
			return cerror.ErrServiceTypeMismatch.GenWithStackByArgs(s.handoffName, "executor")
		}
		cfg.Handoff = handoff
	}

	if s.params.Flavor == FlavorScheduled {
		scheduled, err := workerpool.NewScheduledPool(cfg, factory, env.Clock)
		if err != nil {
			return err
		}
		s.scheduled, s.pool = scheduled, scheduled
	} else {
		pool, err := workerpool.NewThreadPool(cfg, factory, env.Clock)
		if err != nil {
			return err
		}
		s.pool = pool
	}
	s.name = sc.Name
	s.metrics = env.Metrics
	s.pool.RegisterMetrics(promutil.NewFactory4Service(s.metrics, string(s.name)))

	resolved := s.pool.Config()
	log.Info("thread pool started",
		zap.Stringer("name", s.name),
		zap.Stringer("flavor", s.params.Flavor),
		zap.Int("processingUnits", units),
		zap.Int("maxThreads", resolved.MaxThreads),
		zap.Int("coreThreads", resolved.CoreThreads),
		zap.Int("queueLength", resolved.QueueLength),
		zap.Duration("keepAlive", resolved.KeepAlive))
	return nil
}

// Stop implements registry.Service. It waits for queued tasks to finish.
func (s *PoolService) Stop(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	s.metrics.Unregister(string(s.name))
	return errors.Trace(s.pool.Shutdown(ctx))
}

// Execute implements workerpool.Executor.
func (s *PoolService) Execute(ctx context.Context, task workerpool.Task) error {
	if s.pool == nil {
		return cerror.ErrPoolShutdown.GenWithStackByArgs(s.params.Name)
	}
	return s.pool.Execute(ctx, task)
}

// Schedule runs task after delay. Only scheduled pools accept it.
func (s *PoolService) Schedule(delay time.Duration, task workerpool.Task) (func() bool, error) {
	if s.scheduled == nil {
		return nil, cerror.ErrOperationNotSupported.GenWithStackByArgs("schedule", s.params.Name)
	}
	return s.scheduled.Schedule(delay, task)
}

// Config returns the resolved configuration. It is only meaningful once the
// service has started.
func (s *PoolService) Config() workerpool.PoolConfig {
	if s.pool == nil {
		return workerpool.PoolConfig{}
	}
	return s.pool.Config()
}

// Stats returns the counters of the running pool.
func (s *PoolService) Stats() workerpool.Stats {
	if s.pool == nil {
		return workerpool.Stats{}
	}
	return s.pool.Stats()
}
