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
	"github.com/pingcap/poolmgr/pkg/workerpool"
)

// PoolConfig resolves p against the given number of processing units.
//
// Unset counts take the defaults of the flavor: a bounded pool keeps
// max-threads core threads and a queue of max-threads tasks, unbounded and
// scheduled pools keep max-threads core threads in front of an unbounded
// queue, and a queueless pool has no core threads and no queue.
func (p *PoolParameters) PoolConfig(units int) (workerpool.PoolConfig, error) {
	maxThreads, _ := p.MaxThreads.Resolve(units)
	if maxThreads <= 0 {
		return workerpool.PoolConfig{}, cerror.InvalidConfig(AttrMaxThreads,
			"%s resolves to %d with %d processing units, must be positive", p.MaxThreads, maxThreads, units)
	}

	cfg := workerpool.PoolConfig{
		Name:       p.Name,
		MaxThreads: maxThreads,
		KeepAlive:  workerpool.DefaultKeepAlive,
		Labels:     propertyLabels(p.Properties),
	}
	if p.KeepAlive != nil {
		cfg.KeepAlive = p.KeepAlive.Duration()
	}

	switch p.Flavor {
	case FlavorUnbounded, FlavorScheduled:
		cfg.CoreThreads = maxThreads
		cfg.QueueLength = workerpool.QueueUnbounded
	case FlavorQueueless:
		cfg.CoreThreads = 0
		cfg.QueueLength = 0
		cfg.Blocking = p.Blocking
	case FlavorBounded:
		cfg.CoreThreads = p.CoreThreads.ResolveOr(units, maxThreads)
		if cfg.CoreThreads > maxThreads {
			cfg.CoreThreads = maxThreads
		}
		cfg.QueueLength = p.QueueLength.ResolveOr(units, maxThreads)
		cfg.Blocking = p.Blocking
		cfg.AllowCoreTimeout = p.AllowCoreTimeout
	default:
		return workerpool.PoolConfig{}, cerror.InvalidConfig("flavor", "unknown pool flavor %d", int(p.Flavor))
	}
	return cfg, nil
}
