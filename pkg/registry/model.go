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
	"strings"

	"github.com/pingcap/poolmgr/pkg/deps"
)

// ServiceName identifies a service in the registry. Hierarchical names are
// joined with '/', e.g. `io-pool/thread-factory`.
type ServiceName string

// Append returns the name extended by parts.
func (n ServiceName) Append(parts ...string) ServiceName {
	all := make([]string, 0, len(parts)+1)
	if n != "" {
		all = append(all, string(n))
	}
	all = append(all, parts...)
	return ServiceName(strings.Join(all, "/"))
}

// String implements fmt.Stringer.
func (n ServiceName) String() string {
	return string(n)
}

// ServiceKind is the kind of a registered service.
type ServiceKind int

// Service kinds.
const (
	KindPool ServiceKind = iota + 1
	KindThreadFactory
)

// String implements fmt.Stringer.
func (k ServiceKind) String() string {
	switch k {
	case KindPool:
		return "pool"
	case KindThreadFactory:
		return "thread-factory"
	}
	return "unknown"
}

// Service is a runtime unit managed by the registry.
type Service interface {
	// Start is called once all dependencies are running.
	Start(ctx context.Context, sc *StartContext) error
	// Stop is called when the service is removed.
	Stop(ctx context.Context) error
}

// ServiceDescriptor describes one service to install: its name, kind, the
// names it depends on and the not yet started Service value.
type ServiceDescriptor struct {
	Name         ServiceName
	Kind         ServiceKind
	Dependencies []ServiceName
	Service      Service
}

// StartContext is handed to Service.Start.
type StartContext struct {
	Name         ServiceName
	Deps         *deps.Deps
	dependencies map[ServiceName]Service
}

// NewStartContext creates a StartContext, mostly useful in tests.
func NewStartContext(name ServiceName, d *deps.Deps, dependencies map[ServiceName]Service) *StartContext {
	return &StartContext{Name: name, Deps: d, dependencies: dependencies}
}

// Dependency returns the running service a dependency edge points to.
func (sc *StartContext) Dependency(name ServiceName) (Service, bool) {
	svc, ok := sc.dependencies[name]
	return svc, ok
}

//go:generate mockgen -destination mock/registry_mock.go -package mock github.com/pingcap/poolmgr/pkg/registry Registry

// Registry receives install and remove commands. Removing a name that is not
// installed is a no-op, so that unwinding never has to track what the
// registry already dropped.
type Registry interface {
	Install(ctx context.Context, desc *ServiceDescriptor) error
	Remove(ctx context.Context, name ServiceName) error
}
