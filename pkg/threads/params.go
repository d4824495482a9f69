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
	"strings"

	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/resource"
)

// Flavor selects the kind of thread pool and with it the attributes read
// from the configuration.
type Flavor int

// Pool flavors.
const (
	FlavorUnbounded Flavor = iota + 1
	FlavorScheduled
	FlavorQueueless
	FlavorBounded
)

var flavorTypes = map[Flavor]string{
	FlavorUnbounded: TypeUnboundedQueueThreadPool,
	FlavorScheduled: TypeScheduledThreadPool,
	FlavorQueueless: TypeQueuelessThreadPool,
	FlavorBounded:   TypeBoundedQueueThreadPool,
}

// Flavors returns every pool flavor.
func Flavors() []Flavor {
	return []Flavor{FlavorUnbounded, FlavorScheduled, FlavorQueueless, FlavorBounded}
}

// FlavorOf returns the flavor of a pool resource type.
func FlavorOf(resourceType string) (Flavor, bool) {
	for f, tp := range flavorTypes {
		if tp == resourceType {
			return f, true
		}
	}
	return 0, false
}

// ResourceType returns the resource type of pools of this flavor.
func (f Flavor) ResourceType() string {
	return flavorTypes[f]
}

func (f Flavor) String() string {
	switch f {
	case FlavorUnbounded:
		return "unbounded"
	case FlavorScheduled:
		return "scheduled"
	case FlavorQueueless:
		return "queueless"
	case FlavorBounded:
		return "bounded"
	}
	return "unknown"
}

// queueless reports whether the flavor reads the blocking and
// handoff-executor attributes.
func (f Flavor) queueless() bool {
	return f == FlavorQueueless || f == FlavorBounded
}

// PoolParameters is a validated pool configuration. Counts stay unresolved
// until the pool service starts.
type PoolParameters struct {
	Flavor        Flavor
	Name          string
	ThreadFactory string
	Properties    []resource.Property
	MaxThreads    *ScaledCount
	KeepAlive     *TimeSpec

	// queueless and bounded
	Blocking        bool
	HandoffExecutor string

	// bounded
	AllowCoreTimeout bool
	CoreThreads      *ScaledCount
	QueueLength      *ScaledCount
}

// Validate parses the attributes of a pool resource. Attributes that the
// flavor does not declare are not read.
func Validate(flavor Flavor, attrs resource.Attributes) (*PoolParameters, error) {
	if _, ok := flavorTypes[flavor]; !ok {
		return nil, cerror.InvalidConfig("flavor", "unknown pool flavor %d", int(flavor))
	}
	params := &PoolParameters{Flavor: flavor}

	var err error
	if params.Name, err = requireName(attrs); err != nil {
		return nil, err
	}
	if params.ThreadFactory, err = optionalRef(attrs, AttrThreadFactory); err != nil {
		return nil, err
	}
	if params.Properties, err = parseProperties(attrs); err != nil {
		return nil, err
	}
	if params.MaxThreads, err = parseScaledCount(attrs, AttrMaxThreads); err != nil {
		return nil, err
	}
	if params.MaxThreads == nil {
		return nil, cerror.InvalidConfig(AttrMaxThreads, "'%s' was not defined", AttrMaxThreads)
	}
	if params.KeepAlive, err = parseTimeSpec(attrs, AttrKeepAliveTime); err != nil {
		return nil, err
	}

	if flavor.queueless() {
		if params.Blocking, err = parseBool(attrs, AttrBlocking); err != nil {
			return nil, err
		}
		if params.HandoffExecutor, err = optionalRef(attrs, AttrHandoffExecutor); err != nil {
			return nil, err
		}
	}
	if flavor == FlavorBounded {
		if params.AllowCoreTimeout, err = parseBool(attrs, AttrAllowCoreTimeout); err != nil {
			return nil, err
		}
		if params.CoreThreads, err = parseScaledCount(attrs, AttrCoreThreads); err != nil {
			return nil, err
		}
		if params.QueueLength, err = parseScaledCount(attrs, AttrQueueLength); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func requireName(attrs resource.Attributes) (string, error) {
	if !attrs.Has(AttrName) {
		return "", cerror.InvalidConfig(AttrName, "'%s' was not defined", AttrName)
	}
	name, ok := resource.AsString(attrs.Get(AttrName))
	if !ok || strings.TrimSpace(name) == "" {
		return "", cerror.InvalidConfig(AttrName, "must be a non-empty string")
	}
	if strings.Contains(name, "/") {
		return "", cerror.InvalidConfig(AttrName, "'%s' must not contain '/'", name)
	}
	return name, nil
}

// optionalRef reads a reference to another resource, empty when unset.
func optionalRef(attrs resource.Attributes, attr string) (string, error) {
	if !attrs.Has(attr) {
		return "", nil
	}
	ref, ok := resource.AsString(attrs.Get(attr))
	if !ok || strings.TrimSpace(ref) == "" {
		return "", cerror.InvalidConfig(attr, "must be a non-empty string")
	}
	if strings.Contains(ref, "/") {
		return "", cerror.InvalidConfig(attr, "'%s' must not contain '/'", ref)
	}
	return ref, nil
}

// parseProperties accepts a list of properties. A single malformed element
// rejects the whole list.
func parseProperties(attrs resource.Attributes) ([]resource.Property, error) {
	if !attrs.Has(AttrProperties) {
		return nil, nil
	}
	list, ok := resource.AsList(attrs.Get(AttrProperties))
	if !ok {
		return nil, cerror.InvalidConfig(AttrProperties, "%s must be a list of properties", AttrProperties)
	}
	props := make([]resource.Property, 0, len(list))
	for _, elem := range list {
		p, ok := resource.AsProperty(elem)
		if !ok {
			return nil, cerror.InvalidConfig(AttrProperties, "%s must be a list of properties", AttrProperties)
		}
		props = append(props, p)
	}
	return props, nil
}

func parseScaledCount(attrs resource.Attributes, attr string) (*ScaledCount, error) {
	if !attrs.Has(attr) {
		return nil, nil
	}
	obj, ok := resource.AsObject(attrs.Get(attr))
	if !ok {
		return nil, cerror.InvalidConfig(attr, "must define '%s' and '%s'", AttrCount, AttrPerCPU)
	}
	if !obj.Has(AttrCount) {
		return nil, cerror.InvalidConfig(attr, "Missing '%s' for '%s'", AttrCount, attr)
	}
	if !obj.Has(AttrPerCPU) {
		return nil, cerror.InvalidConfig(attr, "Missing '%s' for '%s'", AttrPerCPU, attr)
	}
	count, ok := resource.AsDecimal(obj.Get(AttrCount))
	if !ok {
		return nil, cerror.InvalidConfig(attr, "'%s' for '%s' is not a number", AttrCount, attr)
	}
	perCPU, ok := resource.AsDecimal(obj.Get(AttrPerCPU))
	if !ok {
		return nil, cerror.InvalidConfig(attr, "'%s' for '%s' is not a number", AttrPerCPU, attr)
	}
	return &ScaledCount{Count: count, PerCPU: perCPU}, nil
}

func parseTimeSpec(attrs resource.Attributes, attr string) (*TimeSpec, error) {
	if !attrs.Has(attr) {
		return nil, nil
	}
	obj, ok := resource.AsObject(attrs.Get(attr))
	if !ok {
		return nil, cerror.InvalidConfig(attr, "must define '%s' and '%s'", AttrTime, AttrUnit)
	}
	if !obj.Has(AttrTime) {
		return nil, cerror.InvalidConfig(attr, "Missing '%s' for '%s'", AttrTime, attr)
	}
	if !obj.Has(AttrUnit) {
		return nil, cerror.InvalidConfig(attr, "Missing '%s' for '%s'", AttrUnit, attr)
	}
	value, ok := resource.AsInt64(obj.Get(AttrTime))
	if !ok || value < 0 {
		return nil, cerror.InvalidConfig(attr, "'%s' for '%s' must be a non-negative integer", AttrTime, attr)
	}
	unitName, _ := resource.AsString(obj.Get(AttrUnit))
	unit, ok := ParseTimeUnit(unitName)
	if !ok {
		return nil, cerror.InvalidConfig(attr, "unknown '%s' %v for '%s'", AttrUnit, obj.Get(AttrUnit), attr)
	}
	return &TimeSpec{Unit: unit, Value: value}, nil
}

func parseBool(attrs resource.Attributes, attr string) (bool, error) {
	if !attrs.Has(attr) {
		return false, nil
	}
	b, ok := resource.AsBool(attrs.Get(attr))
	if !ok {
		return false, cerror.InvalidConfig(attr, "must be a boolean")
	}
	return b, nil
}
