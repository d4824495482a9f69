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
	"github.com/pingcap/errors"
)

// errors
var (
	// configuration errors
	ErrInvalidConfiguration = errors.Normalize(
		"invalid configuration for '%s': %s",
		errors.RFCCodeText("POOL:ErrInvalidConfiguration"),
	)
	ErrInvalidAddress = errors.Normalize(
		"invalid resource address: %s",
		errors.RFCCodeText("POOL:ErrInvalidAddress"),
	)
	ErrDecodeFailed = errors.Normalize(
		"decode failed: %s",
		errors.RFCCodeText("POOL:ErrDecodeFailed"),
	)
	ErrInvalidServerConfig = errors.Normalize(
		"invalid server config: %s",
		errors.RFCCodeText("POOL:ErrInvalidServerConfig"),
	)

	// resource tree errors
	ErrResourceNotFound = errors.Normalize(
		"resource not found: %s",
		errors.RFCCodeText("POOL:ErrResourceNotFound"),
	)
	ErrResourceAlreadyExists = errors.Normalize(
		"resource already exists: %s",
		errors.RFCCodeText("POOL:ErrResourceAlreadyExists"),
	)

	// service registry errors
	ErrServiceInstallFailure = errors.Normalize(
		"install service %s failed",
		errors.RFCCodeText("POOL:ErrServiceInstallFailure"),
	)
	ErrServiceRemoveFailure = errors.Normalize(
		"remove service %s failed",
		errors.RFCCodeText("POOL:ErrServiceRemoveFailure"),
	)
	ErrServiceAlreadyExists = errors.Normalize(
		"service %s already exists",
		errors.RFCCodeText("POOL:ErrServiceAlreadyExists"),
	)
	ErrServiceDependencyMissing = errors.Normalize(
		"service %s depends on missing service %s",
		errors.RFCCodeText("POOL:ErrServiceDependencyMissing"),
	)
	ErrServiceHasDependents = errors.Normalize(
		"service %s is still required by %v",
		errors.RFCCodeText("POOL:ErrServiceHasDependents"),
	)
	ErrServiceStartFailed = errors.Normalize(
		"service %s failed to start",
		errors.RFCCodeText("POOL:ErrServiceStartFailed"),
	)
	ErrServiceTypeMismatch = errors.Normalize(
		"service %s is not a %s",
		errors.RFCCodeText("POOL:ErrServiceTypeMismatch"),
	)

	// compound errors
	ErrUnwindFailure = errors.Normalize(
		"unwind of service %s failed",
		errors.RFCCodeText("POOL:ErrUnwindFailure"),
	)
	ErrRecoverFailure = errors.Normalize(
		"recover services of %s failed",
		errors.RFCCodeText("POOL:ErrRecoverFailure"),
	)
	ErrRollbackFailure = errors.Normalize(
		"rollback of transaction %d failed",
		errors.RFCCodeText("POOL:ErrRollbackFailure"),
	)

	// controller errors
	ErrOperationNotSupported = errors.Normalize(
		"operation %s is not supported on %s",
		errors.RFCCodeText("POOL:ErrOperationNotSupported"),
	)
	ErrTransactionClosed = errors.Normalize(
		"transaction %d is already closed",
		errors.RFCCodeText("POOL:ErrTransactionClosed"),
	)

	// workerpool errors
	ErrTaskRejected = errors.Normalize(
		"task rejected by pool %s",
		errors.RFCCodeText("POOL:ErrTaskRejected"),
	)
	ErrPoolShutdown = errors.Normalize(
		"pool %s is shut down",
		errors.RFCCodeText("POOL:ErrPoolShutdown"),
	)
)
