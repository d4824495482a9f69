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

// Package threads implements the thread pool and thread factory resources:
// validation of their attributes, the services realizing them and the
// add and remove operations.
package threads

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/controller"
)

// Register adds the add and remove handlers of every threads resource type
// to table.
func Register(table *controller.HandlerTable) error {
	defs := []*definition{threadFactoryDefinition}
	for _, f := range Flavors() {
		defs = append(defs, poolDefinition(f))
	}
	for _, def := range defs {
		if err := table.Register(def.resourceType, OpAdd, &addHandler{def: def}); err != nil {
			return errors.Trace(err)
		}
		if err := table.Register(def.resourceType, OpRemove, &removeHandler{def: def}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

type addHandler struct {
	def *definition
}

// Execute implements controller.OperationHandler.
func (h *addHandler) Execute(ctx context.Context, oc *controller.OperationContext) error {
	op := newAddOperation(h.def, oc.Address())
	if err := op.Apply(ctx, oc.Resources(), oc.Registry(), oc.Params()); err != nil {
		return err
	}
	oc.OnRollback("remove-services", op.Rollback)
	return nil
}

type removeHandler struct {
	def *definition
}

// Execute implements controller.OperationHandler.
func (h *removeHandler) Execute(ctx context.Context, oc *controller.OperationContext) error {
	op := newRemoveOperation(h.def, oc.Address())
	err := op.Apply(ctx, oc.Resources(), oc.Registry())
	// a partially applied removal is recovered as well
	if len(op.removed) > 0 {
		oc.OnRollback("recover", op.Recover)
	}
	return err
}
