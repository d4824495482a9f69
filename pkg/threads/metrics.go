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
	"github.com/pingcap/poolmgr/pkg/promutil"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsFactory = promutil.NewFactory4Framework()

	unwindCounter = metricsFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolmgr",
			Subsystem: "threads",
			Name:      "unwind_total",
			Help:      "Total number of add operations unwound after a failed install",
		}, []string{"result"})

	recoverCounter = metricsFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolmgr",
			Subsystem: "threads",
			Name:      "recover_total",
			Help:      "Total number of removed resources recovered on rollback",
		}, []string{"result"})
)
