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

package deps

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

type host struct {
	units int
}

type counter interface {
	Count() int
}

func (h *host) Count() int { return h.units }

type env struct {
	dig.In

	Host    *host
	Counter counter
	Label   string `optional:"true"`
}

func TestDepsFill(t *testing.T) {
	t.Parallel()

	d := NewDeps()
	h := &host{units: 4}
	require.NoError(t, d.Supply(h))
	require.NoError(t, d.Provide(func(h *host) counter { return h }))

	var e env
	require.NoError(t, d.Fill(&e))
	require.Same(t, h, e.Host)
	require.Equal(t, 4, e.Counter.Count())
	require.Empty(t, e.Label)
}

func TestDepsMissing(t *testing.T) {
	t.Parallel()

	d := NewDeps()
	var e env
	require.Error(t, d.Fill(&e))
	require.Error(t, d.Supply(nil))
}
