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

package resource

import (
	"strings"

	cerror "github.com/pingcap/poolmgr/pkg/errors"
)

// Element is one `key=value` step of an Address.
type Element struct {
	Key   string
	Value string
}

// Address locates a resource in the configuration tree, e.g.
// `/subsystem=threads/bounded-queue-thread-pool=io-pool`.
type Address []Element

// ParseAddress parses the slash separated form produced by Address.String.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return Address{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, cerror.ErrInvalidAddress.GenWithStackByArgs(s)
	}
	parts := strings.Split(s[1:], "/")
	addr := make(Address, 0, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, cerror.ErrInvalidAddress.GenWithStackByArgs(s)
		}
		addr = append(addr, Element{Key: kv[0], Value: kv[1]})
	}
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String implements fmt.Stringer.
func (a Address) String() string {
	if len(a) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, e := range a {
		b.WriteByte('/')
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(e.Value)
	}
	return b.String()
}

// Append returns a new Address with one more element.
func (a Address) Append(key, value string) Address {
	ret := make(Address, len(a), len(a)+1)
	copy(ret, a)
	return append(ret, Element{Key: key, Value: value})
}

// Parent returns the address without its last element.
func (a Address) Parent() Address {
	if len(a) == 0 {
		return a
	}
	return a[:len(a)-1]
}

// Type returns the key of the last element, the resource type.
func (a Address) Type() string {
	if len(a) == 0 {
		return ""
	}
	return a[len(a)-1].Key
}

// Name returns the value of the last element, the resource name.
func (a Address) Name() string {
	if len(a) == 0 {
		return ""
	}
	return a[len(a)-1].Value
}
