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

	"github.com/shopspring/decimal"
)

var maxCount = decimal.NewFromInt(math.MaxInt32)

// ScaledCount is a quantity made of a fixed count plus a multiple of the
// available processing units. A nil *ScaledCount is an unset attribute,
// which is not the same thing as zero.
type ScaledCount struct {
	Count  decimal.Decimal
	PerCPU decimal.Decimal
}

// NewScaledCount creates a ScaledCount from integral values.
func NewScaledCount(count, perCPU int64) *ScaledCount {
	return &ScaledCount{
		Count:  decimal.NewFromInt(count),
		PerCPU: decimal.NewFromInt(perCPU),
	}
}

// Resolve returns floor(Count + PerCPU*units) clamped to [0, MaxInt32].
// The second result is false when c is unset.
func (c *ScaledCount) Resolve(units int) (int, bool) {
	if c == nil {
		return 0, false
	}
	if units < 0 {
		units = 0
	}
	v := c.Count.Add(c.PerCPU.Mul(decimal.NewFromInt(int64(units)))).Floor()
	switch {
	case v.Sign() < 0:
		return 0, true
	case v.GreaterThan(maxCount):
		return math.MaxInt32, true
	}
	return int(v.IntPart()), true
}

// ResolveOr is Resolve with def standing in for an unset count.
func (c *ScaledCount) ResolveOr(units, def int) int {
	if v, ok := c.Resolve(units); ok {
		return v
	}
	return def
}

// Attributes returns the attribute form of c, nil when unset.
func (c *ScaledCount) Attributes() map[string]interface{} {
	if c == nil {
		return nil
	}
	return map[string]interface{}{
		AttrCount:  c.Count.String(),
		AttrPerCPU: c.PerCPU.String(),
	}
}

func (c *ScaledCount) String() string {
	if c == nil {
		return "<unset>"
	}
	return c.Count.String() + "+" + c.PerCPU.String() + "/cpu"
}
