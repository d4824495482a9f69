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
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/registry"
	"github.com/pingcap/poolmgr/pkg/workerpool"
)

const threadFactorySuffix = "thread-factory"

// PoolServiceName returns the service name of the pool resource name.
func PoolServiceName(pool string) registry.ServiceName {
	return registry.ServiceName(pool)
}

// ThreadFactoryServiceName returns the service name of a thread factory
// resource.
func ThreadFactoryServiceName(factory string) registry.ServiceName {
	return registry.ServiceName(threadFactorySuffix).Append(factory)
}

// OwnedThreadFactoryServiceName returns the name of the thread factory
// created for a pool that does not reference one.
func OwnedThreadFactoryServiceName(pool string) registry.ServiceName {
	return PoolServiceName(pool).Append(threadFactorySuffix)
}

// Topology is the set of services realizing one resource.
type Topology struct {
	// Root is named after the resource.
	Root *registry.ServiceDescriptor
	// Owned are created for Root and live and die with it. They never
	// depend on Root.
	Owned []*registry.ServiceDescriptor
}

// Descriptors returns every service, dependencies before dependents.
func (t *Topology) Descriptors() []*registry.ServiceDescriptor {
	ret := make([]*registry.ServiceDescriptor, 0, len(t.Owned)+1)
	ret = append(ret, t.Owned...)
	return append(ret, t.Root)
}

// Names returns the service names in the order of Descriptors.
func (t *Topology) Names() []registry.ServiceName {
	descs := t.Descriptors()
	names := make([]registry.ServiceName, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// Descriptor returns the descriptor named name.
func (t *Topology) Descriptor(name registry.ServiceName) (*registry.ServiceDescriptor, bool) {
	for _, d := range t.Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// BuildTopology derives the services of a pool. A pool without a
// thread-factory reference gets a thread factory of its own.
func BuildTopology(params *PoolParameters) (*Topology, error) {
	if params == nil || params.Name == "" || params.MaxThreads == nil {
		return nil, cerror.InvalidConfig(AttrName, "pool parameters are not validated")
	}
	poolName := PoolServiceName(params.Name)
	t := &Topology{}

	var factoryName registry.ServiceName
	if params.ThreadFactory != "" {
		factoryName = ThreadFactoryServiceName(params.ThreadFactory)
	} else {
		factoryName = OwnedThreadFactoryServiceName(params.Name)
		t.Owned = append(t.Owned, &registry.ServiceDescriptor{
			Name: factoryName,
			Kind: registry.KindThreadFactory,
			Service: newThreadFactoryService(workerpool.FactoryConfig{
				Name: string(factoryName),
			}),
		})
	}
	deps := []registry.ServiceName{factoryName}

	var handoffName registry.ServiceName
	if params.Flavor.queueless() && params.HandoffExecutor != "" {
		handoffName = PoolServiceName(params.HandoffExecutor)
		if handoffName == poolName {
			return nil, cerror.InvalidConfig(AttrHandoffExecutor, "pool %s cannot hand off to itself", params.Name)
		}
		deps = append(deps, handoffName)
	}

	t.Root = &registry.ServiceDescriptor{
		Name:         poolName,
		Kind:         registry.KindPool,
		Dependencies: deps,
		Service:      newPoolService(params, factoryName, handoffName),
	}
	return t, nil
}

// BuildThreadFactoryTopology derives the single service of a thread factory
// resource.
func BuildThreadFactoryTopology(params *ThreadFactoryParameters) (*Topology, error) {
	if params == nil || params.Name == "" {
		return nil, cerror.InvalidConfig(AttrName, "thread factory parameters are not validated")
	}
	name := ThreadFactoryServiceName(params.Name)
	cfg := params.FactoryConfig()
	cfg.Name = string(name)
	return &Topology{
		Root: &registry.ServiceDescriptor{
			Name:    name,
			Kind:    registry.KindThreadFactory,
			Service: newThreadFactoryService(cfg),
		},
	}, nil
}
