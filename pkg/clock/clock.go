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

// Package clock wraps benbjohnson/clock so that keep-alive and scheduling
// code can run against a mock clock in tests.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

type (
	// Timer is a re-export of the underlying timer.
	Timer = bclock.Timer
	// MonotonicTime is a duration since an arbitrary fixed point.
	MonotonicTime time.Duration
)

var unixEpoch = time.Unix(0, 0)

// Clock is the time source used by pools and operations.
type Clock interface {
	bclock.Clock
	Mono() MonotonicTime
}

type withRealMono struct {
	bclock.Clock
}

func (r withRealMono) Mono() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// Mock is a manually advanced clock.
type Mock struct {
	*bclock.Mock
}

// Mono implements Clock.
func (r Mock) Mono() MonotonicTime {
	return MonotonicTime(r.Now().Sub(unixEpoch))
}

// New returns the real clock.
func New() Clock {
	return withRealMono{bclock.New()}
}

// NewMock returns a mock clock set to the unix epoch.
func NewMock() *Mock {
	return &Mock{bclock.NewMock()}
}

// Sub returns m - other as a duration.
func (m MonotonicTime) Sub(other MonotonicTime) time.Duration {
	return time.Duration(m - other)
}

// MonoNow returns the current monotonic time.
func MonoNow() MonotonicTime {
	return MonotonicTime(monotime.Now())
}
