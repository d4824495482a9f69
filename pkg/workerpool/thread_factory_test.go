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

package workerpool

import (
	"context"
	"fmt"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadName(t *testing.T) {
	t.Parallel()

	f := NewGoroutineFactory(FactoryConfig{
		Name:        "io",
		GroupName:   "workers",
		NamePattern: "%g-%t-%%-%x",
	})
	require.Equal(t, "workers-3-%-%x", f.threadName(3))

	f = NewGoroutineFactory(FactoryConfig{Name: "default"})
	require.Equal(t, fmt.Sprintf("pool-%d-thread-1", f.seq), f.threadName(1))
}

func TestNewThreadLabels(t *testing.T) {
	t.Parallel()

	f := NewGoroutineFactory(FactoryConfig{
		Name:        "io",
		GroupName:   "g",
		NamePattern: "io-%t",
		Labels:      map[string]string{"tenant": "a"},
	})

	labels := make(chan map[string]string, 2)
	for i := 0; i < 2; i++ {
		f.NewThread(func(ctx context.Context) {
			m := make(map[string]string)
			pprof.ForLabels(ctx, func(k, v string) bool {
				m[k] = v
				return true
			})
			labels <- m
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
	require.EqualValues(t, 0, f.Alive())
	require.EqualValues(t, 2, f.Created())

	names := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := <-labels
		require.Equal(t, "io", m["thread-factory"])
		require.Equal(t, "g", m["thread-group"])
		require.Equal(t, "a", m["tenant"])
		names[m["thread"]] = true
	}
	require.Equal(t, map[string]bool{"io-1": true, "io-2": true}, names)
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	f := NewGoroutineFactory(FactoryConfig{Name: "slow"})
	release := make(chan struct{})
	f.NewThread(func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
	require.EqualValues(t, 1, f.Alive())

	close(release)
	require.NoError(t, f.Wait(context.Background()))
}
