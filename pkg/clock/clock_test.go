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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockMono(t *testing.T) {
	t.Parallel()

	m := NewMock()
	start := m.Mono()
	m.Add(3 * time.Second)
	require.Equal(t, 3*time.Second, m.Mono().Sub(start))

	fired := make(chan struct{})
	m.AfterFunc(time.Second, func() { close(fired) })
	m.Add(time.Second)
	<-fired
}

func TestRealMono(t *testing.T) {
	t.Parallel()

	c := New()
	a := c.Mono()
	b := MonoNow()
	require.GreaterOrEqual(t, b.Sub(a), time.Duration(0))
}
