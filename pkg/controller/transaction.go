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

package controller

import (
	"context"

	"github.com/pingcap/log"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/resource"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type rollbackStep struct {
	name string
	op   string
	fn   RollbackStep
}

// Transaction groups operations whose runtime effects are undone together.
// Operations see a staged copy of the configuration tree which replaces the
// committed one on Commit. A Transaction must not be used concurrently.
type Transaction struct {
	id     uint64
	c      *Controller
	staged *resource.Tree
	steps  []rollbackStep
	closed bool
}

// ID returns the sequence number of the transaction.
func (t *Transaction) ID() uint64 {
	return t.id
}

// Resources returns the staged configuration tree.
func (t *Transaction) Resources() *resource.Tree {
	return t.staged
}

// Execute runs one operation. A failed operation leaves the transaction
// open; the caller decides whether to roll back.
func (t *Transaction) Execute(ctx context.Context, op Operation) error {
	if t.closed {
		return cerror.ErrTransactionClosed.GenWithStackByArgs(t.id)
	}
	resourceType := op.Address.Type()
	h, ok := t.c.handlers.Lookup(resourceType, op.Name)
	if !ok {
		operationCounter.WithLabelValues(resourceType, op.Name, resultFailure).Inc()
		return cerror.ErrOperationNotSupported.GenWithStackByArgs(op.Name, op.Address)
	}

	start := t.c.clock.Mono()
	err := h.Execute(ctx, &OperationContext{txn: t, op: &op})
	operationDuration.WithLabelValues(resourceType, op.Name).
		Observe(t.c.clock.Mono().Sub(start).Seconds())
	if err != nil {
		operationCounter.WithLabelValues(resourceType, op.Name, resultFailure).Inc()
		log.Warn("operation failed",
			zap.Uint64("txn", t.id), zap.Stringer("operation", op), zap.Error(err))
		return err
	}
	operationCounter.WithLabelValues(resourceType, op.Name, resultSuccess).Inc()
	log.Debug("operation executed", zap.Uint64("txn", t.id), zap.Stringer("operation", op))
	return nil
}

// Commit publishes the staged tree and drops the rollback steps.
func (t *Transaction) Commit() error {
	if t.closed {
		return cerror.ErrTransactionClosed.GenWithStackByArgs(t.id)
	}
	t.closed = true
	t.c.publish(t.staged)
	t.steps = nil
	t.c.release()

	transactionCounter.WithLabelValues(resultCommitted).Inc()
	log.Info("transaction committed", zap.Uint64("txn", t.id))
	return nil
}

// Rollback runs the registered rollback steps, last registered first, and
// discards the staged tree. Every step runs even if an earlier one fails.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.closed {
		return cerror.ErrTransactionClosed.GenWithStackByArgs(t.id)
	}
	t.closed = true
	defer t.c.release()

	var errs error
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		log.Info("rolling back operation",
			zap.Uint64("txn", t.id), zap.String("step", step.name), zap.String("operation", step.op))
		if err := step.fn(ctx); err != nil {
			log.Error("rollback step failed",
				zap.Uint64("txn", t.id), zap.String("step", step.name),
				zap.String("operation", step.op), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	t.steps = nil
	t.staged = nil
	transactionCounter.WithLabelValues(resultRolledBack).Inc()

	if errs != nil {
		return cerror.WrapError(cerror.ErrRollbackFailure, errs, t.id)
	}
	log.Info("transaction rolled back", zap.Uint64("txn", t.id))
	return nil
}
