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
	"fmt"

	"github.com/pingcap/errors"
	"go.uber.org/multierr"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error.
// If given `err` is nil, returns a nil error, which a the different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// InvalidConfig returns an ErrInvalidConfiguration naming the offending
// attribute.
func InvalidConfig(attribute string, format string, args ...interface{}) error {
	return ErrInvalidConfiguration.GenWithStackByArgs(attribute, fmt.Sprintf(format, args...))
}

// RFCCode returns a RFCCode for an error, or the RFCCode of its cause.
func RFCCode(err error) (errors.RFCErrorCode, bool) {
	if err == nil {
		return "", false
	}
	if terr, ok := err.(*errors.Error); ok {
		return terr.RFCCode(), true
	}
	if next := unwrapOnce(err); next != nil {
		return RFCCode(next)
	}
	return "", false
}

// Is reports whether any error in err's chain, including every error combined
// by multierr, carries the RFC code of target.
func Is(err error, target *errors.Error) bool {
	if err == nil || target == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		for e != nil {
			if terr, ok := e.(*errors.Error); ok && terr.RFCCode() == target.RFCCode() {
				return true
			}
			if errs := multierr.Errors(e); len(errs) > 1 {
				if Is(e, target) {
					return true
				}
				break
			}
			e = unwrapOnce(e)
		}
	}
	return false
}

func unwrapOnce(err error) error {
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return x.Unwrap()
	case interface{ Cause() error }:
		return x.Cause()
	}
	return nil
}
