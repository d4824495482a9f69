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
	"math"
	"strings"
	"time"
)

// TimeUnit is the unit of a keep-alive time.
type TimeUnit int

// Time units, named the way they are written in configuration.
const (
	Nanoseconds TimeUnit = iota + 1
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var timeUnits = []struct {
	name string
	unit time.Duration
}{
	Nanoseconds:  {"NANOSECONDS", time.Nanosecond},
	Microseconds: {"MICROSECONDS", time.Microsecond},
	Milliseconds: {"MILLISECONDS", time.Millisecond},
	Seconds:      {"SECONDS", time.Second},
	Minutes:      {"MINUTES", time.Minute},
	Hours:        {"HOURS", time.Hour},
	Days:         {"DAYS", 24 * time.Hour},
}

// ParseTimeUnit parses a unit name such as "SECONDS". Case is ignored.
func ParseTimeUnit(s string) (TimeUnit, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for u := Nanoseconds; u <= Days; u++ {
		if timeUnits[u].name == s {
			return u, true
		}
	}
	return 0, false
}

func (u TimeUnit) String() string {
	if u < Nanoseconds || u > Days {
		return "UNKNOWN"
	}
	return timeUnits[u].name
}

// TimeSpec is a keep-alive time as configured.
type TimeSpec struct {
	Unit  TimeUnit
	Value int64
}

// Duration converts t, saturating instead of overflowing.
func (t TimeSpec) Duration() time.Duration {
	if t.Unit < Nanoseconds || t.Unit > Days || t.Value <= 0 {
		return 0
	}
	unit := timeUnits[t.Unit].unit
	if t.Value > math.MaxInt64/int64(unit) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(t.Value) * unit
}

// Attributes returns the attribute form of t.
func (t *TimeSpec) Attributes() map[string]interface{} {
	if t == nil {
		return nil
	}
	return map[string]interface{}{
		AttrTime: t.Value,
		AttrUnit: t.Unit.String(),
	}
}
