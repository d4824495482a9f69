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

package syncutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pingcap/errors"
)

// Cond is a condition variable whose waiters can give up when a context is
// canceled. Unlike sync.Cond it has no Signal: every wake up is a broadcast.
type Cond struct {
	L  sync.Locker
	ch atomic.Pointer[chan struct{}]
}

// NewCond creates a new Cond.
func NewCond(l sync.Locker) *Cond {
	c := &Cond{L: l}
	ch := make(chan struct{})
	c.ch.Store(&ch)
	return c
}

// Wait unlocks L, waits for a Broadcast and locks L again.
func (c *Cond) Wait() {
	ch := *c.ch.Load()
	c.L.Unlock()
	<-ch
	c.L.Lock()
}

// WaitWithContext is Wait that also returns when ctx is done.
// L is NOT locked again if ctx is canceled.
func (c *Cond) WaitWithContext(ctx context.Context) error {
	ch := *c.ch.Load()
	c.L.Unlock()
	select {
	case <-ch:
		c.L.Lock()
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Broadcast wakes up all the waiters.
func (c *Cond) Broadcast() {
	ch := make(chan struct{})
	close(*c.ch.Swap(&ch))
}
