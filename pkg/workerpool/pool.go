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
	"time"
)

// QueueUnbounded is the QueueLength of a pool whose queue never fills up.
const QueueUnbounded = -1

// DefaultKeepAlive is the idle time after which a non-core worker exits
// when the configuration does not say otherwise.
const DefaultKeepAlive = 60 * time.Second

// Task is a unit of work submitted to a pool.
type Task func()

// Executor accepts tasks for asynchronous execution.
type Executor interface {
	// Execute submits task. It returns an error when the task can neither
	// be run, queued nor handed off.
	Execute(ctx context.Context, task Task) error
}

// PoolConfig is the resolved sizing of a ThreadPool. Every count is already
// a concrete number here.
type PoolConfig struct {
	Name             string
	CoreThreads      int
	MaxThreads       int
	QueueLength      int
	KeepAlive        time.Duration
	AllowCoreTimeout bool
	// Blocking makes Execute wait for room instead of rejecting.
	Blocking bool
	// Handoff receives tasks the pool cannot accept. Unused when Blocking.
	Handoff Executor
	// Labels are attached to every worker goroutine as pprof labels.
	Labels map[string]string
}

// Stats is a snapshot of a pool's counters.
type Stats struct {
	PoolSize        int
	LargestPoolSize int
	ActiveCount     int
	QueueSize       int
	CompletedTasks  int64
	RejectedTasks   int64
}
