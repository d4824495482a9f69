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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pingcap/errors"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/registry/mock"
	"github.com/pingcap/poolmgr/pkg/resource"
	"github.com/stretchr/testify/require"
)

type descriptorNamed registry.ServiceName

func (m descriptorNamed) Matches(x interface{}) bool {
	desc, ok := x.(*registry.ServiceDescriptor)
	return ok && desc.Name == registry.ServiceName(m)
}

func (m descriptorNamed) String() string {
	return fmt.Sprintf("descriptor named %s", string(m))
}

// chain is a validated model whose topology is a list of services, each
// depending on the previous one.
type chain []registry.ServiceName

func (c chain) references() []reference { return nil }

func (c chain) topology() (*Topology, error) {
	t := &Topology{}
	var prev []registry.ServiceName
	for i, name := range c {
		desc := &registry.ServiceDescriptor{Name: name, Kind: registry.KindPool, Dependencies: prev}
		if i == len(c)-1 {
			t.Root = desc
		} else {
			t.Owned = append(t.Owned, desc)
		}
		prev = []registry.ServiceName{name}
	}
	return t, nil
}

func chainDefinition(names ...registry.ServiceName) *definition {
	return &definition{
		resourceType: TypeUnboundedQueueThreadPool,
		validate: func(resource.Attributes) (validated, error) {
			return chain(names), nil
		},
	}
}

var chainAddress = PoolAddress(FlavorUnbounded, "chain")

func TestAddUnwindsInReverseOrder(t *testing.T) {
	t.Parallel()

	names := []registry.ServiceName{"s1", "s2", "s3"}
	for failAt := 0; failAt < len(names); failAt++ {
		failAt := failAt
		t.Run(fmt.Sprintf("fail-at-%d", failAt+1), func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			reg := mock.NewMockRegistry(ctrl)
			var calls []*gomock.Call
			for i := 0; i < failAt; i++ {
				calls = append(calls, reg.EXPECT().Install(gomock.Any(), descriptorNamed(names[i])).Return(nil))
			}
			calls = append(calls, reg.EXPECT().Install(gomock.Any(), descriptorNamed(names[failAt])).
				Return(cerror.ErrServiceAlreadyExists.GenWithStackByArgs(names[failAt])))
			for i := failAt - 1; i >= 0; i-- {
				calls = append(calls, reg.EXPECT().Remove(gomock.Any(), names[i]).Return(nil))
			}
			gomock.InOrder(calls...)

			tree := resource.NewTree()
			op := newAddOperation(chainDefinition(names...), chainAddress)
			err := op.Apply(context.Background(), tree, reg, nil)
			require.True(t, cerror.Is(err, cerror.ErrServiceInstallFailure), "%v", err)
			require.True(t, cerror.Is(err, cerror.ErrServiceAlreadyExists), "%v", err)
			require.False(t, cerror.Is(err, cerror.ErrUnwindFailure))
			require.Equal(t, AddRolledBack, op.State())
			require.Empty(t, op.Installed())
			require.False(t, tree.Has(chainAddress))
		})
	}
}

func TestAddUnwindFailureIsReported(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	gomock.InOrder(
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("s1")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("s2")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("s3")).
			Return(cerror.ErrServiceStartFailed.GenWithStackByArgs("s3")),
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("s2")).Return(errors.New("stuck")),
		// unwinding goes on after a failed removal
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("s1")).Return(nil),
	)

	op := newAddOperation(chainDefinition("s1", "s2", "s3"), chainAddress)
	err := op.Apply(context.Background(), resource.NewTree(), reg, nil)
	require.True(t, cerror.Is(err, cerror.ErrServiceInstallFailure), "%v", err)
	require.True(t, cerror.Is(err, cerror.ErrUnwindFailure), "%v", err)
	require.True(t, cerror.Is(err, cerror.ErrServiceStartFailed), "%v", err)
	require.Equal(t, AddFailed, op.State())
	require.Equal(t, []registry.ServiceName{"s2"}, op.Installed())
}

func TestAddValidationHasNoSideEffects(t *testing.T) {
	t.Parallel()

	// the mock fails the test on any registry call
	reg := mock.NewMockRegistry(gomock.NewController(t))
	tree := resource.NewTree()
	ctx := context.Background()

	op := newAddOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorBounded, "io-pool"))
	err := op.Apply(ctx, tree, reg, resource.Attributes{})
	require.True(t, cerror.Is(err, cerror.ErrInvalidConfiguration))
	require.Contains(t, err.Error(), AttrMaxThreads)
	require.Equal(t, AddFailed, op.State())

	// name must match the address
	op = newAddOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorBounded, "io-pool"))
	err = op.Apply(ctx, tree, reg, resource.Attributes{AttrName: "other", AttrMaxThreads: scaled(1, 0)})
	require.True(t, cerror.Is(err, cerror.ErrInvalidConfiguration))

	// referenced thread factory must exist
	op = newAddOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorBounded, "io-pool"))
	err = op.Apply(ctx, tree, reg, resource.Attributes{AttrMaxThreads: scaled(1, 0), AttrThreadFactory: "shared"})
	require.True(t, cerror.Is(err, cerror.ErrInvalidConfiguration))
	require.Contains(t, err.Error(), "/subsystem=threads/thread-factory=shared")

	// wrong resource type
	op = newAddOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorQueueless, "io-pool"))
	err = op.Apply(ctx, tree, reg, resource.Attributes{AttrMaxThreads: scaled(1, 0)})
	require.True(t, cerror.Is(err, cerror.ErrInvalidAddress))

	// existing resource
	require.NoError(t, tree.Add(PoolAddress(FlavorBounded, "io-pool"), resource.Attributes{}))
	op = newAddOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorBounded, "io-pool"))
	err = op.Apply(ctx, tree, reg, resource.Attributes{AttrMaxThreads: scaled(1, 0)})
	require.True(t, cerror.Is(err, cerror.ErrResourceAlreadyExists))
}

func TestAddApplyAndRollback(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	gomock.InOrder(
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool/thread-factory")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool")).Return(nil),
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
	)

	addr := PoolAddress(FlavorBounded, "io-pool")
	tree := resource.NewTree()
	op := newAddOperation(poolDefinition(FlavorBounded), addr)
	require.NoError(t, op.Apply(context.Background(), tree, reg, resource.Attributes{
		AttrMaxThreads:    scaled(json.Number("10"), 0.5),
		AttrKeepAliveTime: map[string]interface{}{AttrTime: json.Number("90"), AttrUnit: "SECONDS"},
	}))
	require.Equal(t, AddApplied, op.State())
	require.Equal(t, []registry.ServiceName{"io-pool/thread-factory", "io-pool"}, op.Installed())

	// the stored model carries the parsed values in canonical form
	model, err := tree.Read(addr)
	require.NoError(t, err)
	require.Equal(t, "io-pool", model[AttrName])
	require.Equal(t, map[string]interface{}{AttrCount: "10", AttrPerCPU: "0.5"}, model[AttrMaxThreads])
	require.Equal(t, map[string]interface{}{AttrTime: int64(90), AttrUnit: "SECONDS"}, model[AttrKeepAliveTime])
	require.NotContains(t, model, AttrCoreThreads)

	require.NoError(t, op.Rollback(context.Background()))
	require.Equal(t, AddRolledBack, op.State())
	require.Empty(t, op.Installed())
	// a second rollback has nothing to do
	require.NoError(t, op.Rollback(context.Background()))
}

func TestRemoveAndRecover(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	gomock.InOrder(
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool/thread-factory")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool")).Return(nil),
	)

	addr := PoolAddress(FlavorBounded, "io-pool")
	tree := resource.NewTree()
	require.NoError(t, tree.Add(addr, resource.Attributes{AttrName: "io-pool", AttrMaxThreads: scaled(10, 0)}))

	op := newRemoveOperation(poolDefinition(FlavorBounded), addr)
	require.NoError(t, op.Apply(context.Background(), tree, reg))
	require.Equal(t, RemoveRemoved, op.State())
	require.Equal(t, []registry.ServiceName{"io-pool", "io-pool/thread-factory"}, op.Removed())
	require.False(t, tree.Has(addr))

	require.NoError(t, op.Recover(context.Background()))
	require.Equal(t, RemoveRecovered, op.State())
	require.Empty(t, op.Removed())
}

func TestRemoveSharedFactoryKeepsFactory(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	// only the pool service is removed and recovered
	gomock.InOrder(
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool")).Return(nil),
	)

	addr := PoolAddress(FlavorQueueless, "io-pool")
	tree := resource.NewTree()
	require.NoError(t, tree.Add(addr, resource.Attributes{
		AttrName: "io-pool", AttrMaxThreads: scaled(10, 0), AttrThreadFactory: "shared",
	}))

	op := newRemoveOperation(poolDefinition(FlavorQueueless), addr)
	require.NoError(t, op.Apply(context.Background(), tree, reg))
	require.Equal(t, []registry.ServiceName{"io-pool"}, op.Removed())
	require.NoError(t, op.Recover(context.Background()))
}

func TestRemoveFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).
		Return(cerror.ErrServiceHasDependents.GenWithStackByArgs("io-pool", []string{"other"}))

	addr := PoolAddress(FlavorBounded, "io-pool")
	tree := resource.NewTree()
	require.NoError(t, tree.Add(addr, resource.Attributes{AttrName: "io-pool", AttrMaxThreads: scaled(10, 0)}))

	op := newRemoveOperation(poolDefinition(FlavorBounded), addr)
	err := op.Apply(context.Background(), tree, reg)
	require.True(t, cerror.Is(err, cerror.ErrServiceRemoveFailure), "%v", err)
	require.True(t, cerror.Is(err, cerror.ErrServiceHasDependents), "%v", err)
	require.Equal(t, RemoveFailed, op.State())
	require.Empty(t, op.Removed())
	// the staged model stays until the removal is confirmed
	require.True(t, tree.Has(addr))
	// nothing was removed, so nothing is recovered
	require.NoError(t, op.Recover(context.Background()))

	op = newRemoveOperation(poolDefinition(FlavorBounded), PoolAddress(FlavorBounded, "missing"))
	err = op.Apply(context.Background(), tree, reg)
	require.True(t, cerror.Is(err, cerror.ErrResourceNotFound))
}

func TestRecoverFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reg := mock.NewMockRegistry(ctrl)
	gomock.InOrder(
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
		reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
		reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool/thread-factory")).
			Return(cerror.ErrServiceAlreadyExists.GenWithStackByArgs("io-pool/thread-factory")),
	)

	addr := PoolAddress(FlavorBounded, "io-pool")
	tree := resource.NewTree()
	require.NoError(t, tree.Add(addr, resource.Attributes{AttrName: "io-pool", AttrMaxThreads: scaled(10, 0)}))

	op := newRemoveOperation(poolDefinition(FlavorBounded), addr)
	require.NoError(t, op.Apply(context.Background(), tree, reg))
	err := op.Recover(context.Background())
	require.True(t, cerror.Is(err, cerror.ErrRecoverFailure), "%v", err)
	require.True(t, cerror.Is(err, cerror.ErrServiceAlreadyExists), "%v", err)
	require.Equal(t, RemoveFailed, op.State())
}

func TestRecoverFailureUnwindsReinstalled(t *testing.T) {
	t.Parallel()

	addr := PoolAddress(FlavorBounded, "io-pool")
	newOp := func(t *testing.T, reg registry.Registry) *RemoveOperation {
		tree := resource.NewTree()
		require.NoError(t, tree.Add(addr, resource.Attributes{AttrName: "io-pool", AttrMaxThreads: scaled(10, 0)}))
		op := newRemoveOperation(poolDefinition(FlavorBounded), addr)
		require.NoError(t, op.Apply(context.Background(), tree, reg))
		return op
	}

	t.Run("unwound", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		reg := mock.NewMockRegistry(ctrl)
		gomock.InOrder(
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
			reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool/thread-factory")).Return(nil),
			reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool")).
				Return(cerror.ErrServiceAlreadyExists.GenWithStackByArgs("io-pool")),
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
		)

		op := newOp(t, reg)
		err := op.Recover(context.Background())
		require.True(t, cerror.Is(err, cerror.ErrRecoverFailure), "%v", err)
		require.False(t, cerror.Is(err, cerror.ErrUnwindFailure), "%v", err)
		require.Equal(t, RemoveFailed, op.State())
		require.Equal(t, []registry.ServiceName{"io-pool", "io-pool/thread-factory"}, op.Removed())
	})

	t.Run("unwind failure", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		reg := mock.NewMockRegistry(ctrl)
		gomock.InOrder(
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool")).Return(nil),
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).Return(nil),
			reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool/thread-factory")).Return(nil),
			reg.EXPECT().Install(gomock.Any(), descriptorNamed("io-pool")).
				Return(cerror.ErrServiceAlreadyExists.GenWithStackByArgs("io-pool")),
			reg.EXPECT().Remove(gomock.Any(), registry.ServiceName("io-pool/thread-factory")).
				Return(errors.New("stop failed")),
		)

		op := newOp(t, reg)
		err := op.Recover(context.Background())
		require.True(t, cerror.Is(err, cerror.ErrRecoverFailure), "%v", err)
		require.True(t, cerror.Is(err, cerror.ErrUnwindFailure), "%v", err)
		// the factory is running again, only the pool is still missing
		require.Equal(t, []registry.ServiceName{"io-pool"}, op.Removed())
	})
}
