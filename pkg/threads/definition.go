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
	"github.com/pingcap/poolmgr/pkg/resource"
)

// reference is an attribute naming another resource that must exist.
type reference struct {
	attr string
	addr resource.Address
}

// validated is a model that passed validation and can be turned into
// services.
type validated interface {
	references() []reference
	topology() (*Topology, error)
}

// normalizer is implemented by validated models that rewrite parsed
// attributes in their canonical form before the model is stored.
type normalizer interface {
	normalize(attrs resource.Attributes)
}

// definition describes one resource type of the subsystem.
type definition struct {
	resourceType string
	validate     func(attrs resource.Attributes) (validated, error)
}

func poolDefinition(flavor Flavor) *definition {
	return &definition{
		resourceType: flavor.ResourceType(),
		validate: func(attrs resource.Attributes) (validated, error) {
			params, err := Validate(flavor, attrs)
			if err != nil {
				return nil, err
			}
			return params, nil
		},
	}
}

var threadFactoryDefinition = &definition{
	resourceType: TypeThreadFactory,
	validate: func(attrs resource.Attributes) (validated, error) {
		params, err := ValidateThreadFactory(attrs)
		if err != nil {
			return nil, err
		}
		return params, nil
	},
}

// checkAddress verifies that addr is a resource of d directly under the
// subsystem.
func (d *definition) checkAddress(addr resource.Address) error {
	if addr.Type() != d.resourceType || addr.Parent().String() != SubsystemAddress.String() {
		return cerror.ErrInvalidAddress.GenWithStackByArgs(addr.String())
	}
	return nil
}

func (p *PoolParameters) references() []reference {
	if p.ThreadFactory == "" {
		return nil
	}
	return []reference{{attr: AttrThreadFactory, addr: ThreadFactoryAddress(p.ThreadFactory)}}
}

func (p *PoolParameters) topology() (*Topology, error) {
	return BuildTopology(p)
}

func (p *PoolParameters) normalize(attrs resource.Attributes) {
	set := func(attr string, v map[string]interface{}) {
		if v != nil {
			attrs[attr] = v
		}
	}
	set(AttrMaxThreads, p.MaxThreads.Attributes())
	set(AttrKeepAliveTime, p.KeepAlive.Attributes())
	if p.Flavor == FlavorBounded {
		set(AttrCoreThreads, p.CoreThreads.Attributes())
		set(AttrQueueLength, p.QueueLength.Attributes())
	}
}

func (p *ThreadFactoryParameters) references() []reference {
	return nil
}

func (p *ThreadFactoryParameters) topology() (*Topology, error) {
	return BuildThreadFactoryTopology(p)
}
