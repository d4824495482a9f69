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

package promutil

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const (
	systemID    = "poolmgr-system"
	frameworkID = "poolmgr-framework"

	// constLabelServiceKey is attached to every metric owned by a service.
	constLabelServiceKey = "service"
)

var _ prometheus.Gatherer = globalMetricRegistry

// NOTICE: we don't use prometheus.DefaultRegistry so that collectors owned by
// removed services can be dropped as a whole.
var globalMetricRegistry = NewRegistry()

func init() {
	globalMetricRegistry.MustRegister(systemID, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	globalMetricRegistry.MustRegister(systemID, collectors.NewGoCollector())
}

// Registry is used for registering metric
type Registry struct {
	sync.Mutex
	*prometheus.Registry

	// collectorByOwner is for cleaning all collectors of a removed service
	collectorByOwner map[string][]prometheus.Collector
}

// NewRegistry return a new Registry
func NewRegistry() *Registry {
	return &Registry{
		Registry:         prometheus.NewRegistry(),
		collectorByOwner: make(map[string][]prometheus.Collector),
	}
}

// GlobalRegistry returns the process level registry served on /metrics.
func GlobalRegistry() *Registry {
	return globalMetricRegistry
}

// MustRegister registers the provided Collector of the specified owner
func (r *Registry) MustRegister(owner string, c prometheus.Collector) {
	if c == nil {
		return
	}
	r.Lock()
	defer r.Unlock()

	r.Registry.MustRegister(c)
	r.collectorByOwner[owner] = append(r.collectorByOwner[owner], c)
}

// Unregister unregisters all Collectors of the specified owner
func (r *Registry) Unregister(owner string) {
	r.Lock()
	defer r.Unlock()

	cls, exists := r.collectorByOwner[owner]
	if exists {
		for _, collector := range cls {
			r.Registry.Unregister(collector)
		}
		delete(r.collectorByOwner, owner)
	}
}

// Owners returns the number of owners with registered collectors.
func (r *Registry) Owners() int {
	r.Lock()
	defer r.Unlock()
	return len(r.collectorByOwner)
}

// Gather implements Gatherer interface
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	// NOT NEED lock here. prometheus.Registry has thread-safe methods
	return r.Registry.Gather()
}

// HTTPHandler returns the http.Handler exposing the metrics of r.
func HTTPHandler(r *Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{})
}

// NewFactory4Framework returns a Factory registering into the global
// registry, for metrics living as long as the process.
func NewFactory4Framework() Factory {
	return NewAutoRegisterFactory(globalMetricRegistry, frameworkID, nil)
}

// NewFactory4Service returns a Factory whose metrics carry the service label
// and are dropped by r.Unregister(service).
func NewFactory4Service(r *Registry, service string) Factory {
	return NewAutoRegisterFactory(r, service, prometheus.Labels{
		constLabelServiceKey: service,
	})
}
