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
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/resource"
)

// RollbackStep undoes the runtime effect of an operation.
type RollbackStep func(ctx context.Context) error

// OperationContext is what a handler sees of the transaction it runs in.
type OperationContext struct {
	txn *Transaction
	op  *Operation
}

// Operation returns the operation being executed.
func (oc *OperationContext) Operation() *Operation {
	return oc.op
}

// Address returns the target of the operation.
func (oc *OperationContext) Address() resource.Address {
	return oc.op.Address
}

// Params returns the operation parameters, never nil.
func (oc *OperationContext) Params() resource.Attributes {
	if oc.op.Params == nil {
		return resource.Attributes{}
	}
	return oc.op.Params
}

// Resources returns the staged configuration tree of the transaction.
// Changes become visible to readers of the controller on commit.
func (oc *OperationContext) Resources() *resource.Tree {
	return oc.txn.staged
}

// Registry returns the runtime service registry.
func (oc *OperationContext) Registry() registry.Registry {
	return oc.txn.c.registry
}

// OnRollback registers step to run if the transaction is rolled back.
// Steps run in the reverse order of registration.
func (oc *OperationContext) OnRollback(name string, step RollbackStep) {
	oc.txn.steps = append(oc.txn.steps, rollbackStep{
		name: name,
		op:   oc.op.String(),
		fn:   step,
	})
}

// OperationHandler executes one kind of operation on one resource type.
type OperationHandler interface {
	Execute(ctx context.Context, oc *OperationContext) error
}

// HandlerFunc adapts a function to OperationHandler.
type HandlerFunc func(ctx context.Context, oc *OperationContext) error

// Execute implements OperationHandler.
func (f HandlerFunc) Execute(ctx context.Context, oc *OperationContext) error {
	return f(ctx, oc)
}

type handlerKey struct {
	resourceType string
	operation    string
}

// HandlerTable maps a resource type and an operation name to a handler.
type HandlerTable struct {
	mu       sync.RWMutex
	handlers map[handlerKey]OperationHandler
}

// NewHandlerTable creates an empty HandlerTable.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: make(map[handlerKey]OperationHandler)}
}

// Register adds a handler. Registering the same pair twice is an error.
func (t *HandlerTable) Register(resourceType, operation string, h OperationHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := handlerKey{resourceType: resourceType, operation: operation}
	if _, ok := t.handlers[key]; ok {
		return errors.Errorf("handler of %s on %s is already registered", operation, resourceType)
	}
	t.handlers[key] = h
	return nil
}

// Lookup returns the handler of an operation on a resource type.
func (t *HandlerTable) Lookup(resourceType, operation string) (OperationHandler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.handlers[handlerKey{resourceType: resourceType, operation: operation}]
	return h, ok
}

// Operations returns the operation names registered for a resource type.
func (t *HandlerTable) Operations(resourceType string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ops []string
	for k := range t.handlers {
		if k.resourceType == resourceType {
			ops = append(ops, k.operation)
		}
	}
	sort.Strings(ops)
	return ops
}
