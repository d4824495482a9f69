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
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// DefaultThreadNamePattern names threads like `pool-1-thread-3`.
const DefaultThreadNamePattern = "pool-%f-thread-%t"

// ThreadFactory starts the goroutines backing pool workers.
type ThreadFactory interface {
	// NewThread starts fn on a new goroutine. The context passed to fn
	// carries the pprof labels of the thread.
	NewThread(fn func(ctx context.Context)) string
}

// FactoryConfig configures a GoroutineFactory.
type FactoryConfig struct {
	Name string
	// GroupName is substituted for %g in the name pattern and attached as
	// the `thread-group` label.
	GroupName string
	// NamePattern understands %f (factory sequence), %t (thread sequence),
	// %g (group name) and %% (a literal percent sign).
	NamePattern string
	Labels      map[string]string
}

var factorySeq atomic.Int64

// GoroutineFactory is the ThreadFactory used by every pool. Each thread is a
// goroutine labelled with its name, so that pool workers can be told apart
// in goroutine profiles.
type GoroutineFactory struct {
	cfg       FactoryConfig
	seq       int64
	threadSeq atomic.Int64
	alive     atomic.Int64
	wg        sync.WaitGroup
	labels    []string
}

// NewGoroutineFactory creates a GoroutineFactory.
func NewGoroutineFactory(cfg FactoryConfig) *GoroutineFactory {
	if cfg.NamePattern == "" {
		cfg.NamePattern = DefaultThreadNamePattern
	}
	f := &GoroutineFactory{
		cfg: cfg,
		seq: factorySeq.Inc(),
	}
	f.labels = append(f.labels, "thread-factory", cfg.Name)
	if cfg.GroupName != "" {
		f.labels = append(f.labels, "thread-group", cfg.GroupName)
	}
	f.labels = append(f.labels, sortedLabels(cfg.Labels)...)
	return f
}

// NewThread implements ThreadFactory.
func (f *GoroutineFactory) NewThread(fn func(ctx context.Context)) string {
	name := f.threadName(f.threadSeq.Inc())
	labels := append(append([]string(nil), f.labels...), "thread", name)

	f.alive.Inc()
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.alive.Dec()
		pprof.Do(context.Background(), pprof.Labels(labels...), fn)
	}()
	return name
}

// Alive returns the number of running threads.
func (f *GoroutineFactory) Alive() int64 {
	return f.alive.Load()
}

// Created returns the number of threads ever started.
func (f *GoroutineFactory) Created() int64 {
	return f.threadSeq.Load()
}

// Wait blocks until every thread started by f has returned.
func (f *GoroutineFactory) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *GoroutineFactory) threadName(threadSeq int64) string {
	var b strings.Builder
	pattern := f.cfg.NamePattern
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 == len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		switch pattern[i] {
		case 'f':
			b.WriteString(strconv.FormatInt(f.seq, 10))
		case 't':
			b.WriteString(strconv.FormatInt(threadSeq, 10))
		case 'g':
			b.WriteString(f.cfg.GroupName)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}

func sortedLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ret := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		ret = append(ret, k, labels[k])
	}
	return ret
}
