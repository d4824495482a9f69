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

package hostinfo

import (
	"runtime"

	"github.com/pingcap/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

// Provider reports the number of processing units a pool may scale with.
// It is consulted when a pool service starts, not when its configuration is
// validated.
type Provider interface {
	AvailableProcessors() int
}

// Fixed is a Provider that always reports the same number of units.
type Fixed int

// AvailableProcessors implements Provider.
func (f Fixed) AvailableProcessors() int {
	if f < 0 {
		return 0
	}
	return int(f)
}

type system struct{}

// AvailableProcessors implements Provider. The logical CPU count of the host
// is capped by GOMAXPROCS, which already reflects CPU affinity and any
// container quota applied at process start.
func (system) AvailableProcessors() int {
	units := runtime.GOMAXPROCS(0)
	counts, err := cpu.Counts(true)
	if err != nil {
		log.Warn("failed to count logical cpus, fallback to GOMAXPROCS",
			zap.Int("units", units), zap.Error(err))
		return units
	}
	if counts > 0 && counts < units {
		return counts
	}
	return units
}

// New returns a Provider. A positive override pins the unit count, otherwise
// the host is inspected every time.
func New(override int) Provider {
	if override > 0 {
		return Fixed(override)
	}
	return system{}
}
