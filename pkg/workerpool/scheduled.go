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

package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/clock"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"go.uber.org/zap"
)

// ScheduledPool runs tasks after a delay on a fixed number of workers.
type ScheduledPool struct {
	*ThreadPool

	mu     sync.Mutex
	nextID uint64
	timers map[uint64]*clock.Timer
	closed bool
}

// NewScheduledPool creates a ScheduledPool with maxThreads workers and an
// unbounded queue.
func NewScheduledPool(cfg PoolConfig, factory ThreadFactory, clk clock.Clock) (*ScheduledPool, error) {
	cfg.CoreThreads = cfg.MaxThreads
	cfg.QueueLength = QueueUnbounded
	cfg.Blocking = false
	cfg.Handoff = nil
	pool, err := NewThreadPool(cfg, factory, clk)
	if err != nil {
		return nil, err
	}
	return &ScheduledPool{
		ThreadPool: pool,
		timers:     make(map[uint64]*clock.Timer),
	}, nil
}

// Schedule runs task once delay has passed. The returned cancel function
// reports whether it stopped the task before it was submitted.
func (p *ScheduledPool) Schedule(delay time.Duration, task Task) (cancel func() bool, err error) {
	if task == nil {
		return nil, errors.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, cerror.ErrPoolShutdown.GenWithStackByArgs(p.cfg.Name)
	}

	p.nextID++
	id := p.nextID
	p.timers[id] = p.clock.AfterFunc(delay, func() {
		if !p.forget(id) {
			return
		}
		if err := p.ThreadPool.Execute(context.Background(), task); err != nil {
			log.Warn("scheduled task dropped",
				zap.String("pool", p.cfg.Name), zap.Duration("delay", delay), zap.Error(err))
		}
	})
	return func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		t, ok := p.timers[id]
		if !ok {
			return false
		}
		delete(p.timers, id)
		t.Stop()
		return true
	}, nil
}

func (p *ScheduledPool) forget(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timers[id]; !ok {
		return false
	}
	delete(p.timers, id)
	return true
}

// Pending returns the number of tasks waiting for their delay to pass.
func (p *ScheduledPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Shutdown drops pending scheduled tasks and shuts the pool down.
func (p *ScheduledPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
	return p.ThreadPool.Shutdown(ctx)
}
