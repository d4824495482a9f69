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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	t.Parallel()

	require.Equal(t, 4, Fixed(4).AvailableProcessors())
	require.Equal(t, 0, Fixed(-1).AvailableProcessors())
	require.Equal(t, 8, New(8).AvailableProcessors())
}

func TestSystem(t *testing.T) {
	t.Parallel()

	units := New(0).AvailableProcessors()
	require.Greater(t, units, 0)
	require.LessOrEqual(t, units, runtime.GOMAXPROCS(0))
}
