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

package config

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/poolmgr/pkg/controller"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/resource"
	"github.com/pingcap/poolmgr/pkg/threads"
)

// poolTypeKey selects the pool flavor of a [[pool]] table.
const poolTypeKey = "type"

// ResourceConfig is the content of a resource bootstrap file:
//
//	[[thread-factory]]
//	name = "io"
//	group-name = "io"
//
//	[[pool]]
//	type = "bounded-queue-thread-pool"
//	name = "io-pool"
//	thread-factory = "io"
//	max-threads = { count = 10, per-cpu = 2 }
//
// Every table other than the pool type is passed through as a resource
// attribute.
type ResourceConfig struct {
	ThreadFactories []map[string]interface{} `toml:"thread-factory"`
	Pools           []map[string]interface{} `toml:"pool"`
}

// LoadResourceFile decodes a resource bootstrap file.
func LoadResourceFile(path string) (*ResourceConfig, error) {
	cfg := &ResourceConfig{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrDecodeFailed, err, path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, cerror.ErrDecodeFailed.GenWithStackByArgs(
			fmt.Sprintf("resource file %s contained unknown sections: %v", path, undecoded))
	}
	return cfg, nil
}

// DecodeResources decodes resource bootstrap content.
func DecodeResources(data string) (*ResourceConfig, error) {
	cfg := &ResourceConfig{}
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrDecodeFailed, err, "resources")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, cerror.ErrDecodeFailed.GenWithStackByArgs(
			fmt.Sprintf("resources contained unknown sections: %v", undecoded))
	}
	return cfg, nil
}

// Operations returns the add operations installing the resources, thread
// factories first so that pools can reference them.
func (c *ResourceConfig) Operations() ([]controller.Operation, error) {
	ops := make([]controller.Operation, 0, len(c.ThreadFactories)+len(c.Pools))
	for i, tf := range c.ThreadFactories {
		attrs := resource.Attributes(tf).Clone()
		name, err := resourceName(attrs, fmt.Sprintf("thread-factory[%d]", i))
		if err != nil {
			return nil, err
		}
		ops = append(ops, controller.Operation{
			Name:    threads.OpAdd,
			Address: threads.ThreadFactoryAddress(name),
			Params:  attrs,
		})
	}
	for i, p := range c.Pools {
		attrs := resource.Attributes(p).Clone()
		where := fmt.Sprintf("pool[%d]", i)
		name, err := resourceName(attrs, where)
		if err != nil {
			return nil, err
		}
		tp, _ := resource.AsString(attrs.Get(poolTypeKey))
		flavor, ok := threads.FlavorOf(tp)
		if !ok {
			return nil, cerror.ErrDecodeFailed.GenWithStackByArgs(
				fmt.Sprintf("%s has unknown %s %q, expected one of %v", where, poolTypeKey, tp, poolTypes()))
		}
		delete(attrs, poolTypeKey)
		ops = append(ops, controller.Operation{
			Name:    threads.OpAdd,
			Address: threads.PoolAddress(flavor, name),
			Params:  attrs,
		})
	}
	return ops, nil
}

func resourceName(attrs resource.Attributes, where string) (string, error) {
	name, ok := resource.AsString(attrs.Get(threads.AttrName))
	if !ok || name == "" {
		return "", cerror.ErrDecodeFailed.GenWithStackByArgs(where + " has no name")
	}
	return name, nil
}

func poolTypes() []string {
	var ret []string
	for _, f := range threads.Flavors() {
		ret = append(ret, f.ResourceType())
	}
	sort.Strings(ret)
	return ret
}
