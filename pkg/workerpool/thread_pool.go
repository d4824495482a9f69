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
	"runtime/pprof"
	"sync"

	"github.com/edwingeng/deque"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/clock"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/pingcap/poolmgr/pkg/syncutil"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var _ Executor = (*ThreadPool)(nil)

// ThreadPool runs tasks on up to MaxThreads workers.
//
// A task is given to a new worker while fewer than CoreThreads run, then
// queued, then given to a new worker while fewer than MaxThreads run. When
// none of that is possible the submitter either waits (Blocking), hands the
// task off, or gets ErrTaskRejected. Workers above the core size, and core
// workers when AllowCoreTimeout is set, exit after KeepAlive without work.
type ThreadPool struct {
	cfg     PoolConfig
	factory ThreadFactory
	clock   clock.Clock
	labels  pprof.LabelSet

	mu sync.Mutex
	// taskCond is waited on by idle workers, roomCond by blocked submitters.
	taskCond   *sync.Cond
	roomCond   *syncutil.Cond
	queue      deque.Deque
	workers    int
	idle       int
	largest    int
	shutdown   bool
	terminated chan struct{}

	active    atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
}

// NewThreadPool creates a ThreadPool. No worker is started until the first
// task arrives.
func NewThreadPool(cfg PoolConfig, factory ThreadFactory, clk clock.Clock) (*ThreadPool, error) {
	if cfg.MaxThreads < 1 {
		return nil, cerror.InvalidConfig("max-threads", "must be positive, got %d", cfg.MaxThreads)
	}
	if cfg.CoreThreads < 0 || cfg.CoreThreads > cfg.MaxThreads {
		return nil, cerror.InvalidConfig("core-threads",
			"must be between 0 and max-threads %d, got %d", cfg.MaxThreads, cfg.CoreThreads)
	}
	if cfg.QueueLength < QueueUnbounded {
		return nil, cerror.InvalidConfig("queue-length", "must not be negative, got %d", cfg.QueueLength)
	}
	if cfg.KeepAlive < 0 {
		return nil, cerror.InvalidConfig("keepalive-time", "must not be negative, got %s", cfg.KeepAlive)
	}
	if factory == nil {
		return nil, errors.New("thread factory is required")
	}
	if clk == nil {
		clk = clock.New()
	}

	labels := []string{"thread-pool", cfg.Name}
	labels = append(labels, sortedLabels(cfg.Labels)...)
	p := &ThreadPool{
		cfg:        cfg,
		factory:    factory,
		clock:      clk,
		labels:     pprof.Labels(labels...),
		queue:      deque.NewDeque(),
		terminated: make(chan struct{}),
	}
	p.taskCond = sync.NewCond(&p.mu)
	p.roomCond = syncutil.NewCond(&p.mu)
	return p, nil
}

// Config returns the resolved configuration of the pool.
func (p *ThreadPool) Config() PoolConfig {
	return p.cfg
}

// Execute implements Executor.
func (p *ThreadPool) Execute(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	p.mu.Lock()
	for {
		if p.shutdown {
			p.mu.Unlock()
			return cerror.ErrPoolShutdown.GenWithStackByArgs(p.cfg.Name)
		}
		if p.workers < p.cfg.CoreThreads {
			p.addWorkerLocked(task)
			p.mu.Unlock()
			return nil
		}
		if p.canQueueLocked() {
			p.queue.PushBack(task)
			p.taskCond.Signal()
			if p.workers == 0 {
				p.addWorkerLocked(nil)
			}
			p.mu.Unlock()
			return nil
		}
		if p.workers < p.cfg.MaxThreads {
			p.addWorkerLocked(task)
			p.mu.Unlock()
			return nil
		}
		if !p.cfg.Blocking {
			break
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return errors.Trace(err)
		}
		if err := p.roomCond.WaitWithContext(ctx); err != nil {
			return err
		}
	}
	handoff := p.cfg.Handoff
	p.mu.Unlock()

	if handoff != nil {
		return handoff.Execute(ctx, task)
	}
	p.rejected.Inc()
	log.Debug("task rejected", zap.String("pool", p.cfg.Name))
	return cerror.ErrTaskRejected.GenWithStackByArgs(p.cfg.Name)
}

// canQueueLocked reports whether a task may be queued. Idle workers count as
// extra room: a queueless pool hands tasks to them through the queue.
func (p *ThreadPool) canQueueLocked() bool {
	if p.cfg.QueueLength == QueueUnbounded {
		return true
	}
	return p.queue.Len() < p.cfg.QueueLength+p.idle
}

func (p *ThreadPool) addWorkerLocked(first Task) {
	p.workers++
	if p.workers > p.largest {
		p.largest = p.workers
	}
	p.factory.NewThread(func(ctx context.Context) {
		pprof.Do(ctx, p.labels, func(context.Context) {
			p.runWorker(first)
		})
	})
}

func (p *ThreadPool) runWorker(task Task) {
	for {
		if task == nil {
			if task = p.getTask(); task == nil {
				return
			}
		}
		p.runTask(task)
		task = nil
	}
}

func (p *ThreadPool) runTask(task Task) {
	p.active.Inc()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked",
				zap.String("pool", p.cfg.Name), zap.Any("panic", r), zap.Stack("stack"))
		}
		p.active.Dec()
		p.completed.Inc()
	}()
	task()
}

// getTask blocks until a task is available. It returns nil when the worker
// should exit, in which case the worker has already been accounted for.
func (p *ThreadPool) getTask() Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	timedOut := false
	for {
		if p.queue.Len() > 0 {
			task := p.queue.PopFront().(Task)
			p.roomCond.Broadcast()
			return task
		}
		if p.shutdown {
			p.exitWorkerLocked()
			return nil
		}
		timed := p.cfg.AllowCoreTimeout || p.workers > p.cfg.CoreThreads
		if timed && (timedOut || p.cfg.KeepAlive <= 0) {
			p.exitWorkerLocked()
			return nil
		}

		p.idle++
		// an idle worker is room for a queueless hand-off
		p.roomCond.Broadcast()
		if timed {
			deadline := p.clock.Now().Add(p.cfg.KeepAlive)
			timer := p.clock.AfterFunc(p.cfg.KeepAlive, func() {
				p.mu.Lock()
				p.taskCond.Broadcast()
				p.mu.Unlock()
			})
			p.taskCond.Wait()
			timer.Stop()
			timedOut = !p.clock.Now().Before(deadline)
		} else {
			p.taskCond.Wait()
		}
		p.idle--
	}
}

func (p *ThreadPool) exitWorkerLocked() {
	p.workers--
	p.roomCond.Broadcast()
	if p.shutdown && p.workers == 0 {
		close(p.terminated)
	}
}

// Shutdown stops accepting tasks and waits until the queued ones have run
// and every worker has exited, or ctx is done.
func (p *ThreadPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.shutdown {
		p.shutdown = true
		p.taskCond.Broadcast()
		p.roomCond.Broadcast()
		if p.workers == 0 {
			close(p.terminated)
		}
		log.Info("thread pool shutting down",
			zap.String("pool", p.cfg.Name),
			zap.Int("workers", p.workers),
			zap.Int("queued", p.queue.Len()))
	}
	p.mu.Unlock()

	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Stats returns a snapshot of the pool counters.
func (p *ThreadPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		PoolSize:        p.workers,
		LargestPoolSize: p.largest,
		ActiveCount:     int(p.active.Load()),
		QueueSize:       p.queue.Len(),
		CompletedTasks:  p.completed.Load(),
		RejectedTasks:   p.rejected.Load(),
	}
}

// RegisterMetrics exposes the pool counters through f.
func (p *ThreadPool) RegisterMetrics(f promutil.Factory) {
	gauge := func(name, help string, fn func(Stats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "poolmgr",
			Subsystem: "thread_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(p.Stats()) })
	}
	gauge("pool_size", "number of workers", func(s Stats) float64 { return float64(s.PoolSize) })
	gauge("active_count", "number of workers running a task", func(s Stats) float64 { return float64(s.ActiveCount) })
	gauge("queue_size", "number of queued tasks", func(s Stats) float64 { return float64(s.QueueSize) })
	gauge("completed_tasks", "number of finished tasks", func(s Stats) float64 { return float64(s.CompletedTasks) })
	gauge("rejected_tasks", "number of rejected tasks", func(s Stats) float64 { return float64(s.RejectedTasks) })
}
