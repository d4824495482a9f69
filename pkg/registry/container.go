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
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/pingcap/log"
	"github.com/pingcap/poolmgr/pkg/deps"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var _ Registry = (*Container)(nil)

type entry struct {
	desc *ServiceDescriptor
}

func lessEntry(a, b *entry) bool {
	return a.desc.Name < b.desc.Name
}

// Container is the in-process Registry. It starts services in the order
// their install commands arrive and refuses anything that would leave a
// dependency edge dangling.
type Container struct {
	mu         sync.Mutex
	deps       *deps.Deps
	services   *btree.BTreeG[*entry]
	dependents map[ServiceName]map[ServiceName]struct{}
}

// NewContainer creates a Container whose services are started with d.
func NewContainer(d *deps.Deps) *Container {
	if d == nil {
		d = deps.NewDeps()
	}
	return &Container{
		deps:       d,
		services:   btree.NewG[*entry](8, lessEntry),
		dependents: make(map[ServiceName]map[ServiceName]struct{}),
	}
}

func (c *Container) get(name ServiceName) (*entry, bool) {
	return c.services.Get(&entry{desc: &ServiceDescriptor{Name: name}})
}

// Install implements Registry.Install.
func (c *Container) Install(ctx context.Context, desc *ServiceDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.get(desc.Name); ok {
		return cerror.ErrServiceAlreadyExists.GenWithStackByArgs(desc.Name)
	}
	running := make(map[ServiceName]Service, len(desc.Dependencies))
	for _, dep := range desc.Dependencies {
		e, ok := c.get(dep)
		if !ok {
			return cerror.ErrServiceDependencyMissing.GenWithStackByArgs(desc.Name, dep)
		}
		running[dep] = e.desc.Service
	}

	sc := NewStartContext(desc.Name, c.deps, running)
	if err := desc.Service.Start(ctx, sc); err != nil {
		return cerror.WrapError(cerror.ErrServiceStartFailed, err, desc.Name)
	}

	c.services.ReplaceOrInsert(&entry{desc: desc})
	for _, dep := range desc.Dependencies {
		if c.dependents[dep] == nil {
			c.dependents[dep] = make(map[ServiceName]struct{})
		}
		c.dependents[dep][desc.Name] = struct{}{}
	}
	installedServiceGauge.WithLabelValues(desc.Kind.String()).Inc()
	log.Info("service installed",
		zap.Stringer("name", desc.Name),
		zap.Stringer("kind", desc.Kind),
		zap.Any("dependencies", desc.Dependencies))
	return nil
}

// Remove implements Registry.Remove.
func (c *Container) Remove(ctx context.Context, name ServiceName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, name)
}

func (c *Container) removeLocked(ctx context.Context, name ServiceName) error {
	e, ok := c.get(name)
	if !ok {
		log.Debug("service not installed, skip removing", zap.Stringer("name", name))
		return nil
	}
	if users := c.dependents[name]; len(users) > 0 {
		names := make([]string, 0, len(users))
		for u := range users {
			names = append(names, string(u))
		}
		sort.Strings(names)
		return cerror.ErrServiceHasDependents.GenWithStackByArgs(name, names)
	}
	if err := e.desc.Service.Stop(ctx); err != nil {
		return cerror.WrapError(cerror.ErrServiceRemoveFailure, err, name)
	}

	c.services.Delete(e)
	delete(c.dependents, name)
	for _, dep := range e.desc.Dependencies {
		if users, ok := c.dependents[dep]; ok {
			delete(users, name)
			if len(users) == 0 {
				delete(c.dependents, dep)
			}
		}
	}
	installedServiceGauge.WithLabelValues(e.desc.Kind.String()).Dec()
	log.Info("service removed", zap.Stringer("name", name), zap.Stringer("kind", e.desc.Kind))
	return nil
}

// Lookup returns the running service with the given name.
func (c *Container) Lookup(name ServiceName) (Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.get(name)
	if !ok {
		return nil, false
	}
	return e.desc.Service, true
}

// Descriptor returns the descriptor a running service was installed with.
func (c *Container) Descriptor(name ServiceName) (*ServiceDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.get(name)
	if !ok {
		return nil, false
	}
	return e.desc, true
}

// Services returns the names of all running services in order.
func (c *Container) Services() []ServiceName {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]ServiceName, 0, c.services.Len())
	c.services.Ascend(func(e *entry) bool {
		names = append(names, e.desc.Name)
		return true
	})
	return names
}

// Shutdown removes every service, dependents before their dependencies.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	for c.services.Len() > 0 {
		var leaves []ServiceName
		c.services.Ascend(func(e *entry) bool {
			if len(c.dependents[e.desc.Name]) == 0 {
				leaves = append(leaves, e.desc.Name)
			}
			return true
		})
		removed := 0
		for _, name := range leaves {
			if err := c.removeLocked(ctx, name); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			removed++
		}
		if removed == 0 {
			break
		}
	}
	return errs
}
