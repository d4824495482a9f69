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
	"encoding/json"
	"strings"
	"testing"

	"github.com/pingcap/errors"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/resource"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperations(t *testing.T) {
	t.Parallel()

	ops, err := DecodeOperations(strings.NewReader(`[
		{"operation": "add", "address": "/subsystem=threads/thread-factory=io",
		 "params": {"group-name": "io"}},
		{"operation": "add", "address": "/subsystem=threads/bounded-queue-thread-pool=io-pool",
		 "params": {"max-threads": {"count": 10, "per-cpu": 0.5}, "thread-factory": "io"}},
		{"operation": "remove", "address": "/subsystem=threads/thread-factory=old"}
	]`))
	require.NoError(t, err)
	require.Len(t, ops, 3)

	require.Equal(t, "add", ops[0].Name)
	require.Equal(t, "/subsystem=threads/thread-factory=io", ops[0].Address.String())
	require.Equal(t, "io", ops[0].Params["group-name"])

	maxThreads, ok := resource.AsObject(ops[1].Params["max-threads"])
	require.True(t, ok)
	// numbers stay exact
	require.Equal(t, json.Number("0.5"), maxThreads["per-cpu"])
	require.Equal(t, "bounded-queue-thread-pool", ops[1].Address.Type())
	require.Equal(t, "io-pool", ops[1].Address.Name())

	require.Equal(t, "remove /subsystem=threads/thread-factory=old", ops[2].String())
	require.Nil(t, ops[2].Params)
}

func TestDecodeOperationsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  *errors.Error
	}{
		{`{"operation": "add"}`, cerror.ErrDecodeFailed},
		{`[{"operation": "", "address": "/subsystem=threads"}]`, cerror.ErrDecodeFailed},
		{`[{"operation": "add", "address": "/subsystem=threads", "extra": 1}]`, cerror.ErrDecodeFailed},
		{`[{"operation": "add", "address": "subsystem=threads"}]`, cerror.ErrInvalidAddress},
		{`[{"operation": "add", "address": "/subsystem"}]`, cerror.ErrInvalidAddress},
		{`[`, cerror.ErrDecodeFailed},
	}
	for _, tc := range cases {
		_, err := DecodeOperations(strings.NewReader(tc.input))
		require.Error(t, err, tc.input)
		require.True(t, cerror.Is(err, tc.want), "%s: %v", tc.input, err)
	}
}
