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
	"bytes"
	"io"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	cerror "github.com/pingcap/poolmgr/pkg/errors"
	"github.com/pingcap/poolmgr/pkg/resource"
)

// Operation is one management request against a resource.
type Operation struct {
	Name    string
	Address resource.Address
	Params  resource.Attributes
}

func (op Operation) String() string {
	return op.Name + " " + op.Address.String()
}

type operationJSON struct {
	Operation string                 `json:"operation"`
	Address   string                 `json:"address"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (op Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(operationJSON{
		Operation: op.Name,
		Address:   op.Address.String(),
		Params:    op.Params,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are kept as
// json.Number so that decimal attributes do not go through float64.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var raw operationJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return cerror.WrapError(cerror.ErrDecodeFailed, err, "operation")
	}
	if raw.Operation == "" {
		return cerror.ErrDecodeFailed.GenWithStackByArgs("operation name is empty")
	}
	addr, err := resource.ParseAddress(raw.Address)
	if err != nil {
		return err
	}
	op.Name = raw.Operation
	op.Address = addr
	op.Params = resource.Attributes(raw.Params)
	return nil
}

// DecodeOperations reads a JSON array of operations.
func DecodeOperations(r io.Reader) ([]Operation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		if cerror.Is(err, cerror.ErrDecodeFailed) || cerror.Is(err, cerror.ErrInvalidAddress) {
			return nil, err
		}
		return nil, cerror.WrapError(cerror.ErrDecodeFailed, err, "operations")
	}
	return ops, nil
}
