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

import "github.com/pingcap/poolmgr/pkg/resource"

// Attribute names of thread pool and thread factory resources.
const (
	AttrName             = "name"
	AttrMaxThreads       = "max-threads"
	AttrCoreThreads      = "core-threads"
	AttrQueueLength      = "queue-length"
	AttrKeepAliveTime    = "keepalive-time"
	AttrThreadFactory    = "thread-factory"
	AttrHandoffExecutor  = "handoff-executor"
	AttrBlocking         = "blocking"
	AttrAllowCoreTimeout = "allow-core-timeout"
	AttrProperties       = "properties"

	AttrGroupName         = "group-name"
	AttrThreadNamePattern = "thread-name-pattern"

	// sub-fields
	AttrCount  = "count"
	AttrPerCPU = "per-cpu"
	AttrTime   = "time"
	AttrUnit   = "unit"
)

// Resource types under the threads subsystem.
const (
	TypeBoundedQueueThreadPool   = "bounded-queue-thread-pool"
	TypeQueuelessThreadPool      = "queueless-thread-pool"
	TypeUnboundedQueueThreadPool = "unbounded-queue-thread-pool"
	TypeScheduledThreadPool      = "scheduled-thread-pool"
	TypeThreadFactory            = "thread-factory"
)

// Operation names.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// SubsystemAddress is the parent of every threads resource.
var SubsystemAddress = resource.Address{{Key: "subsystem", Value: "threads"}}

// PoolAddress returns the address of a pool resource.
func PoolAddress(flavor Flavor, name string) resource.Address {
	return SubsystemAddress.Append(flavor.ResourceType(), name)
}

// ThreadFactoryAddress returns the address of a thread factory resource.
func ThreadFactoryAddress(name string) resource.Address {
	return SubsystemAddress.Append(TypeThreadFactory, name)
}
