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

// Package controller runs management operations against the resource tree
// inside transactions.
package controller

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/clock"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/resource"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Controller owns the committed configuration tree and serializes
// transactions: Begin blocks while another transaction is open, so
// handlers never see concurrent operations.
type Controller struct {
	sem chan struct{}

	mu        sync.RWMutex
	committed *resource.Tree

	registry registry.Registry
	handlers *HandlerTable
	clock    clock.Clock
	txnSeq   atomic.Uint64
}

// New creates a Controller with an empty tree.
func New(reg registry.Registry, handlers *HandlerTable, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		sem:       make(chan struct{}, 1),
		committed: resource.NewTree(),
		registry:  reg,
		handlers:  handlers,
		clock:     clk,
	}
}

// Begin opens a transaction, waiting for the current one to finish.
func (c *Controller) Begin(ctx context.Context) (*Transaction, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	}
	c.mu.RLock()
	staged := c.committed.Clone()
	c.mu.RUnlock()
	return &Transaction{
		id:     c.txnSeq.Inc(),
		c:      c,
		staged: staged,
	}, nil
}

func (c *Controller) release() {
	<-c.sem
}

func (c *Controller) publish(tree *resource.Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = tree
}

// Execute runs ops as one composite operation. When any of them fails,
// every operation executed so far is rolled back and the failure is
// returned together with any rollback failure.
func (c *Controller) Execute(ctx context.Context, ops ...Operation) error {
	txn, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := txn.Execute(ctx, op); err != nil {
			rbErr := txn.Rollback(context.WithoutCancel(ctx))
			return multierr.Append(err, rbErr)
		}
	}
	return txn.Commit()
}

// ReadResource returns a copy of the committed model of a resource.
func (c *Controller) ReadResource(addr resource.Address) (resource.Attributes, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed.Read(addr)
}

// Children lists the committed resources of a type under parent.
func (c *Controller) Children(parent resource.Address, childType string) []resource.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed.Children(parent, childType)
}
