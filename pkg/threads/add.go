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

	"github.com/pingcap/log"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/resource"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AddState is the state of an AddOperation.
type AddState int

// Add states. The success path is Received, Validated, TopologyBuilt,
// Applying, Applied. A failed install goes from Applying to Failed and, once
// the installed services are unwound, to RolledBack.
const (
	AddReceived AddState = iota
	AddValidated
	AddTopologyBuilt
	AddApplying
	AddApplied
	AddFailed
	AddRolledBack
)

var addTransitions = map[AddState][]AddState{
	AddReceived:      {AddValidated, AddFailed},
	AddValidated:     {AddTopologyBuilt, AddFailed},
	AddTopologyBuilt: {AddApplying, AddFailed},
	AddApplying:      {AddApplied, AddFailed},
	AddApplied:       {AddRolledBack, AddFailed},
	AddFailed:        {AddRolledBack},
}

func (s AddState) String() string {
	switch s {
	case AddReceived:
		return "received"
	case AddValidated:
		return "validated"
	case AddTopologyBuilt:
		return "topology-built"
	case AddApplying:
		return "applying"
	case AddApplied:
		return "applied"
	case AddFailed:
		return "failed"
	case AddRolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// AddOperation adds one resource and installs its services.
type AddOperation struct {
	def       *definition
	addr      resource.Address
	state     AddState
	topology  *Topology
	reg       registry.Registry
	installed []registry.ServiceName
}

func newAddOperation(def *definition, addr resource.Address) *AddOperation {
	return &AddOperation{def: def, addr: addr}
}

// State returns the current state.
func (op *AddOperation) State() AddState {
	return op.state
}

// Installed returns the services installed by the operation and not yet
// removed, in install order.
func (op *AddOperation) Installed() []registry.ServiceName {
	return append([]registry.ServiceName(nil), op.installed...)
}

func (op *AddOperation) transition(to AddState) {
	for _, s := range addTransitions[op.state] {
		if s == to {
			log.Debug("add operation state changed",
				zap.Stringer("address", op.addr),
				zap.Stringer("from", op.state),
				zap.Stringer("to", to))
			op.state = to
			return
		}
	}
	log.Panic("illegal add operation state transition",
		zap.Stringer("address", op.addr), zap.Stringer("from", op.state), zap.Stringer("to", to))
}

// Apply validates params, stages the model in tree and installs the
// services in dependency order. When an install fails, the services already
// installed are removed in reverse order before the error is returned.
func (op *AddOperation) Apply(
	ctx context.Context, tree *resource.Tree, reg registry.Registry, params resource.Attributes,
) error {
	attrs, v, err := op.validate(tree, params)
	if err != nil {
		op.transition(AddFailed)
		return err
	}

	topology, err := v.topology()
	if err != nil {
		op.transition(AddFailed)
		return err
	}
	op.topology = topology
	op.transition(AddTopologyBuilt)

	op.reg = reg
	op.transition(AddApplying)
	for _, desc := range topology.Descriptors() {
		if err := reg.Install(ctx, desc); err != nil {
			return op.fail(ctx, reg, cerror.WrapError(cerror.ErrServiceInstallFailure, err, desc.Name))
		}
		op.installed = append(op.installed, desc.Name)
	}
	if err := tree.Add(op.addr, attrs); err != nil {
		return op.fail(ctx, reg, err)
	}
	op.transition(AddApplied)
	log.Info("resource added",
		zap.Stringer("address", op.addr), zap.Any("services", op.installed))
	return nil
}

func (op *AddOperation) validate(
	tree *resource.Tree, params resource.Attributes,
) (resource.Attributes, validated, error) {
	if err := op.def.checkAddress(op.addr); err != nil {
		return nil, nil, err
	}
	attrs := params.Clone()
	if attrs == nil {
		attrs = resource.Attributes{}
	}
	name := op.addr.Name()
	if attrs.Has(AttrName) {
		if given, _ := resource.AsString(attrs.Get(AttrName)); given != name {
			return nil, nil, cerror.InvalidConfig(AttrName, "%v does not match the resource address %s",
				attrs.Get(AttrName), op.addr)
		}
	} else {
		attrs[AttrName] = name
	}

	v, err := op.def.validate(attrs)
	if err != nil {
		return nil, nil, err
	}
	if n, ok := v.(normalizer); ok {
		n.normalize(attrs)
	}
	op.transition(AddValidated)

	if tree.Has(op.addr) {
		return nil, nil, cerror.ErrResourceAlreadyExists.GenWithStackByArgs(op.addr.String())
	}
	for _, ref := range v.references() {
		if !tree.Has(ref.addr) {
			return nil, nil, cerror.InvalidConfig(ref.attr, "%s is not defined", ref.addr)
		}
	}
	return attrs, v, nil
}

func (op *AddOperation) fail(ctx context.Context, reg registry.Registry, cause error) error {
	op.transition(AddFailed)
	log.Warn("add operation failed, unwinding installed services",
		zap.Stringer("address", op.addr), zap.Any("installed", op.installed), zap.Error(cause))
	if err := op.unwind(ctx, reg); err != nil {
		unwindCounter.WithLabelValues("failure").Inc()
		log.Error("unwind failed, services are left installed",
			zap.Stringer("address", op.addr), zap.Any("installed", op.installed), zap.Error(err))
		return multierr.Append(cause, err)
	}
	unwindCounter.WithLabelValues("success").Inc()
	op.transition(AddRolledBack)
	return cause
}

// unwind removes the installed services in reverse install order. Every
// removal is attempted; the ones that fail stay in op.installed.
func (op *AddOperation) unwind(ctx context.Context, reg registry.Registry) error {
	var (
		errs error
		left []registry.ServiceName
	)
	for i := len(op.installed) - 1; i >= 0; i-- {
		name := op.installed[i]
		if err := reg.Remove(ctx, name); err != nil {
			errs = multierr.Append(errs, cerror.WrapError(cerror.ErrUnwindFailure, err, name))
			left = append(left, name)
			continue
		}
		log.Warn("service unwound", zap.Stringer("address", op.addr), zap.Stringer("service", name))
	}
	// left is in reverse order
	for i, j := 0, len(left)-1; i < j; i, j = i+1, j-1 {
		left[i], left[j] = left[j], left[i]
	}
	op.installed = left
	return errs
}

// Rollback undoes an applied operation when its transaction is rolled
// back. The staged model goes away with the transaction.
func (op *AddOperation) Rollback(ctx context.Context) error {
	if op.state != AddApplied {
		return nil
	}
	if err := op.unwind(ctx, op.reg); err != nil {
		op.transition(AddFailed)
		return err
	}
	op.transition(AddRolledBack)
	return nil
}
