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
	"github.com/pingcap/poolmgr/pkg/workerpool"
)

// ThreadFactoryParameters is a validated thread factory configuration.
type ThreadFactoryParameters struct {
	Name        string
	GroupName   string
	NamePattern string
	Properties  []resource.Property
}

// ValidateThreadFactory parses the attributes of a thread factory resource.
func ValidateThreadFactory(attrs resource.Attributes) (*ThreadFactoryParameters, error) {
	params := &ThreadFactoryParameters{}
	var err error
	if params.Name, err = requireName(attrs); err != nil {
		return nil, err
	}
	if params.GroupName, err = optionalString(attrs, AttrGroupName); err != nil {
		return nil, err
	}
	if params.NamePattern, err = optionalString(attrs, AttrThreadNamePattern); err != nil {
		return nil, err
	}
	if params.Properties, err = parseProperties(attrs); err != nil {
		return nil, err
	}
	return params, nil
}

// FactoryConfig returns the configuration of the running factory.
func (p *ThreadFactoryParameters) FactoryConfig() workerpool.FactoryConfig {
	return workerpool.FactoryConfig{
		Name:        p.Name,
		GroupName:   p.GroupName,
		NamePattern: p.NamePattern,
		Labels:      propertyLabels(p.Properties),
	}
}

func optionalString(attrs resource.Attributes, attr string) (string, error) {
	if !attrs.Has(attr) {
		return "", nil
	}
	s, ok := resource.AsString(attrs.Get(attr))
	if !ok {
		return "", cerror.InvalidConfig(attr, "must be a string")
	}
	return s, nil
}

func propertyLabels(props []resource.Property) map[string]string {
	labels := make(map[string]string, len(props))
	for _, p := range props {
		labels[p.Name] = p.Value
	}
	return labels
}
