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

// RemoveState is the state of a RemoveOperation.
type RemoveState int

// Remove states. The success path is Received, Removing, Removed. When the
// surrounding transaction is rolled back the operation goes through
// Recovering to Recovered.
const (
	RemoveReceived RemoveState = iota
	RemoveRemoving
	RemoveRemoved
	RemoveFailed
	RemoveRecovering
	RemoveRecovered
)

var removeTransitions = map[RemoveState][]RemoveState{
	RemoveReceived:   {RemoveRemoving, RemoveFailed},
	RemoveRemoving:   {RemoveRemoved, RemoveFailed},
	RemoveRemoved:    {RemoveRecovering},
	RemoveFailed:     {RemoveRecovering},
	RemoveRecovering: {RemoveRecovered, RemoveFailed},
}

func (s RemoveState) String() string {
	switch s {
	case RemoveReceived:
		return "received"
	case RemoveRemoving:
		return "removing"
	case RemoveRemoved:
		return "removed"
	case RemoveFailed:
		return "failed"
	case RemoveRecovering:
		return "recovering"
	case RemoveRecovered:
		return "recovered"
	}
	return "unknown"
}

// RemoveOperation removes one resource and its services. It keeps the
// model it removed so that the services can be rebuilt if the transaction
// is rolled back.
type RemoveOperation struct {
	def     *definition
	addr    resource.Address
	state   RemoveState
	model   resource.Attributes
	reg     registry.Registry
	removed []registry.ServiceName
}

func newRemoveOperation(def *definition, addr resource.Address) *RemoveOperation {
	return &RemoveOperation{def: def, addr: addr}
}

// State returns the current state.
func (op *RemoveOperation) State() RemoveState {
	return op.state
}

// Removed returns the services removed by the operation, in removal order.
func (op *RemoveOperation) Removed() []registry.ServiceName {
	return append([]registry.ServiceName(nil), op.removed...)
}

func (op *RemoveOperation) transition(to RemoveState) {
	for _, s := range removeTransitions[op.state] {
		if s == to {
			log.Debug("remove operation state changed",
				zap.Stringer("address", op.addr),
				zap.Stringer("from", op.state),
				zap.Stringer("to", to))
			op.state = to
			return
		}
	}
	log.Panic("illegal remove operation state transition",
		zap.Stringer("address", op.addr), zap.Stringer("from", op.state), zap.Stringer("to", to))
}

// Apply stages the removal of the model and removes the services, the
// resource's own service first. The staged model is put back if a removal
// fails.
func (op *RemoveOperation) Apply(ctx context.Context, tree *resource.Tree, reg registry.Registry) error {
	if err := op.def.checkAddress(op.addr); err != nil {
		op.transition(RemoveFailed)
		return err
	}
	model, err := tree.Read(op.addr)
	if err != nil {
		op.transition(RemoveFailed)
		return err
	}
	topology, err := op.buildTopology(model)
	if err != nil {
		op.transition(RemoveFailed)
		return err
	}
	op.model = model
	op.reg = reg

	op.transition(RemoveRemoving)
	if err := tree.Remove(op.addr); err != nil {
		op.transition(RemoveFailed)
		return err
	}
	names := topology.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := reg.Remove(ctx, names[i]); err != nil {
			op.transition(RemoveFailed)
			if addErr := tree.Add(op.addr, model); addErr != nil {
				log.Warn("failed to restore staged model", zap.Stringer("address", op.addr), zap.Error(addErr))
			}
			return cerror.WrapError(cerror.ErrServiceRemoveFailure, err, names[i])
		}
		op.removed = append(op.removed, names[i])
	}
	op.transition(RemoveRemoved)
	log.Info("resource removed",
		zap.Stringer("address", op.addr), zap.Any("services", op.removed))
	return nil
}

func (op *RemoveOperation) buildTopology(model resource.Attributes) (*Topology, error) {
	v, err := op.def.validate(model)
	if err != nil {
		return nil, err
	}
	return v.topology()
}

// Recover reinstalls, from the model read before removal, exactly the
// services that Apply removed.
func (op *RemoveOperation) Recover(ctx context.Context) error {
	if len(op.removed) == 0 {
		return nil
	}
	op.transition(RemoveRecovering)
	log.Warn("recovering removed services",
		zap.Stringer("address", op.addr), zap.Any("services", op.removed))

	topology, err := op.buildTopology(op.model)
	if err != nil {
		return op.failRecover(err)
	}
	removed := make(map[registry.ServiceName]struct{}, len(op.removed))
	for _, name := range op.removed {
		removed[name] = struct{}{}
	}
	var reinstalled []registry.ServiceName
	for _, desc := range topology.Descriptors() {
		if _, ok := removed[desc.Name]; !ok {
			continue
		}
		if err := op.reg.Install(ctx, desc); err != nil {
			err = cerror.WrapError(cerror.ErrServiceInstallFailure, err, desc.Name)
			return op.failRecover(multierr.Append(err, op.undoRecover(ctx, reinstalled)))
		}
		reinstalled = append(reinstalled, desc.Name)
	}
	op.removed = nil
	recoverCounter.WithLabelValues("success").Inc()
	op.transition(RemoveRecovered)
	log.Info("resource recovered", zap.Stringer("address", op.addr))
	return nil
}

// undoRecover removes, in reverse order, the services reinstalled by a
// failed Recover. Services that cannot be removed are no longer counted as
// removed by the operation.
func (op *RemoveOperation) undoRecover(ctx context.Context, reinstalled []registry.ServiceName) error {
	var (
		errs error
		left = make(map[registry.ServiceName]struct{})
	)
	for i := len(reinstalled) - 1; i >= 0; i-- {
		name := reinstalled[i]
		if err := op.reg.Remove(ctx, name); err != nil {
			errs = multierr.Append(errs, cerror.WrapError(cerror.ErrUnwindFailure, err, name))
			left[name] = struct{}{}
			continue
		}
		log.Warn("reinstalled service unwound", zap.Stringer("address", op.addr), zap.Stringer("service", name))
	}
	if len(left) > 0 {
		removed := op.removed[:0]
		for _, name := range op.removed {
			if _, ok := left[name]; !ok {
				removed = append(removed, name)
			}
		}
		op.removed = removed
	}
	return errs
}

func (op *RemoveOperation) failRecover(err error) error {
	recoverCounter.WithLabelValues("failure").Inc()
	op.transition(RemoveFailed)
	log.Error("recover failed", zap.Stringer("address", op.addr), zap.Error(err))
	return cerror.WrapError(cerror.ErrRecoverFailure, err, op.addr.String())
}
