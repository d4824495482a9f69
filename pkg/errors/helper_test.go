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

package errors

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestWrapError(t *testing.T) {
	t.Parallel()

	require.Nil(t, WrapError(ErrServiceInstallFailure, nil, "io-pool"))

	cause := errors.New("boom")
	err := WrapError(ErrServiceInstallFailure, cause, "io-pool")
	require.Error(t, err)
	require.True(t, Is(err, ErrServiceInstallFailure))
	require.Equal(t, cause, errors.Cause(err))

	code, ok := RFCCode(err)
	require.True(t, ok)
	require.Equal(t, ErrServiceInstallFailure.RFCCode(), code)
}

func TestIs(t *testing.T) {
	t.Parallel()

	invalid := InvalidConfig("max-threads", "was not defined")
	require.True(t, Is(invalid, ErrInvalidConfiguration))
	require.True(t, Is(errors.Trace(invalid), ErrInvalidConfiguration))
	require.False(t, Is(invalid, ErrServiceInstallFailure))
	require.False(t, Is(nil, ErrInvalidConfiguration))
	require.False(t, Is(errors.New("plain"), ErrInvalidConfiguration))
	require.Contains(t, invalid.Error(), "max-threads")

	install := ErrServiceInstallFailure.GenWithStackByArgs("io-pool")
	unwind := ErrUnwindFailure.GenWithStackByArgs("io-pool/thread-factory")
	compound := multierr.Combine(install, unwind)
	require.True(t, Is(compound, ErrServiceInstallFailure))
	require.True(t, Is(compound, ErrUnwindFailure))
	require.False(t, Is(compound, ErrServiceRemoveFailure))

	nested := WrapError(ErrRollbackFailure, compound, 1)
	require.True(t, Is(nested, ErrRollbackFailure))
	require.True(t, Is(nested, ErrUnwindFailure))

	_, ok := RFCCode(errors.New("plain"))
	require.False(t, ok)
}
