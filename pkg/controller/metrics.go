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

package controller

import (
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	factory = promutil.NewFactory4Framework()

	operationCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolmgr",
			Subsystem: "controller",
			Name:      "operation_total",
			Help:      "Total number of executed operations",
		}, []string{"type", "operation", "result"})

	operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poolmgr",
			Subsystem: "controller",
			Name:      "operation_duration_seconds",
			Help:      "Bucketed histogram of operation execution time",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18),
		}, []string{"type", "operation"})

	transactionCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolmgr",
			Subsystem: "controller",
			Name:      "transaction_total",
			Help:      "Total number of finished transactions",
		}, []string{"result"})
)

const (
	resultSuccess    = "success"
	resultFailure    = "failure"
	resultCommitted  = "committed"
	resultRolledBack = "rolled-back"
)
