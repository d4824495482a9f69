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

package registry

import (
	"context"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/poolmgr/pkg/deps"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

type fakeService struct {
	started  bool
	stopped  bool
	startErr error
	stopErr  error
	seen     map[ServiceName]Service
	units    hostUnits
}

type hostUnits int

type fakeEnv struct {
	dig.In

	Units hostUnits `optional:"true"`
}

func (s *fakeService) Start(ctx context.Context, sc *StartContext) error {
	if s.startErr != nil {
		return s.startErr
	}
	var env fakeEnv
	if err := sc.Deps.Fill(&env); err != nil {
		return err
	}
	s.units = env.Units
	s.seen = make(map[ServiceName]Service)
	for _, name := range []ServiceName{"io-pool/thread-factory"} {
		if dep, ok := sc.Dependency(name); ok {
			s.seen[name] = dep
		}
	}
	s.started = true
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	if s.stopErr != nil {
		return s.stopErr
	}
	s.stopped = true
	return nil
}

func TestServiceName(t *testing.T) {
	t.Parallel()

	require.Equal(t, ServiceName("io-pool/thread-factory"), ServiceName("io-pool").Append("thread-factory"))
	require.Equal(t, ServiceName("thread-factory/tf"), ServiceName("").Append("thread-factory", "tf"))
	require.Equal(t, "pool", KindPool.String())
	require.Equal(t, "thread-factory", KindThreadFactory.String())
	require.Equal(t, "unknown", ServiceKind(0).String())
}

func TestContainerInstallAndRemove(t *testing.T) {
	t.Parallel()

	d := deps.NewDeps()
	require.NoError(t, d.Supply(hostUnits(4)))
	c := NewContainer(d)
	ctx := context.Background()

	factory := &fakeService{}
	pool := &fakeService{}
	poolDesc := &ServiceDescriptor{
		Name:         "io-pool",
		Kind:         KindPool,
		Dependencies: []ServiceName{"io-pool/thread-factory"},
		Service:      pool,
	}

	// dependency missing
	err := c.Install(ctx, poolDesc)
	require.True(t, cerror.Is(err, cerror.ErrServiceDependencyMissing))
	require.False(t, pool.started)

	require.NoError(t, c.Install(ctx, &ServiceDescriptor{
		Name: "io-pool/thread-factory", Kind: KindThreadFactory, Service: factory,
	}))
	require.NoError(t, c.Install(ctx, poolDesc))
	require.True(t, pool.started)
	require.Equal(t, hostUnits(4), pool.units)
	require.Same(t, factory, pool.seen["io-pool/thread-factory"])
	require.Equal(t, []ServiceName{"io-pool", "io-pool/thread-factory"}, c.Services())

	svc, ok := c.Lookup("io-pool")
	require.True(t, ok)
	require.Same(t, pool, svc)
	desc, ok := c.Descriptor("io-pool")
	require.True(t, ok)
	require.Same(t, poolDesc, desc)

	// name collision fails fast and does not touch the running service
	err = c.Install(ctx, &ServiceDescriptor{Name: "io-pool", Kind: KindPool, Service: &fakeService{}})
	require.True(t, cerror.Is(err, cerror.ErrServiceAlreadyExists))

	// the factory is still required by the pool
	err = c.Remove(ctx, "io-pool/thread-factory")
	require.True(t, cerror.Is(err, cerror.ErrServiceHasDependents))
	require.False(t, factory.stopped)

	require.NoError(t, c.Remove(ctx, "io-pool"))
	require.True(t, pool.stopped)
	require.NoError(t, c.Remove(ctx, "io-pool/thread-factory"))
	require.True(t, factory.stopped)
	require.Empty(t, c.Services())

	// removing an unknown name is a no-op
	require.NoError(t, c.Remove(ctx, "io-pool"))
	_, ok = c.Lookup("io-pool")
	require.False(t, ok)
}

func TestContainerStartAndStopFailure(t *testing.T) {
	t.Parallel()

	c := NewContainer(nil)
	ctx := context.Background()

	err := c.Install(ctx, &ServiceDescriptor{
		Name: "bad", Kind: KindPool, Service: &fakeService{startErr: errors.New("boom")},
	})
	require.True(t, cerror.Is(err, cerror.ErrServiceStartFailed))
	require.Empty(t, c.Services())

	stuck := &fakeService{stopErr: errors.New("stuck")}
	require.NoError(t, c.Install(ctx, &ServiceDescriptor{Name: "stuck", Kind: KindPool, Service: stuck}))
	err = c.Remove(ctx, "stuck")
	require.True(t, cerror.Is(err, cerror.ErrServiceRemoveFailure))
	require.Equal(t, []ServiceName{"stuck"}, c.Services())
}

func TestContainerShutdown(t *testing.T) {
	t.Parallel()

	c := NewContainer(nil)
	ctx := context.Background()

	services := map[ServiceName]*fakeService{
		"a/thread-factory": {},
		"a":                {},
		"b":                {},
	}
	require.NoError(t, c.Install(ctx, &ServiceDescriptor{Name: "a/thread-factory", Kind: KindThreadFactory, Service: services["a/thread-factory"]}))
	require.NoError(t, c.Install(ctx, &ServiceDescriptor{Name: "a", Kind: KindPool, Dependencies: []ServiceName{"a/thread-factory"}, Service: services["a"]}))
	require.NoError(t, c.Install(ctx, &ServiceDescriptor{Name: "b", Kind: KindPool, Dependencies: []ServiceName{"a"}, Service: services["b"]}))

	require.NoError(t, c.Shutdown(ctx))
	require.Empty(t, c.Services())
	for name, svc := range services {
		require.True(t, svc.stopped, name)
	}
}
