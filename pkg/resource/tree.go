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
	"sort"

	cerror "github.com/pingcap/poolmgr/pkg/errors"
)

// Tree is an in-memory configuration tree. It is not safe for concurrent
// use; a transaction works on its own Clone and publishes it on commit.
type Tree struct {
	nodes map[string]*node
}

type node struct {
	addr  Address
	attrs Attributes
}

// NewTree creates an empty Tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*node)}
}

// Has reports whether a resource exists at addr.
func (t *Tree) Has(addr Address) bool {
	_, ok := t.nodes[addr.String()]
	return ok
}

// Read returns a copy of the attributes of the resource at addr.
func (t *Tree) Read(addr Address) (Attributes, error) {
	n, ok := t.nodes[addr.String()]
	if !ok {
		return nil, cerror.ErrResourceNotFound.GenWithStackByArgs(addr.String())
	}
	return n.attrs.Clone(), nil
}

// Add creates the resource at addr.
func (t *Tree) Add(addr Address, attrs Attributes) error {
	key := addr.String()
	if _, ok := t.nodes[key]; ok {
		return cerror.ErrResourceAlreadyExists.GenWithStackByArgs(key)
	}
	t.nodes[key] = &node{
		addr:  append(Address(nil), addr...),
		attrs: attrs.Clone(),
	}
	return nil
}

// Remove deletes the resource at addr.
func (t *Tree) Remove(addr Address) error {
	key := addr.String()
	if _, ok := t.nodes[key]; !ok {
		return cerror.ErrResourceNotFound.GenWithStackByArgs(key)
	}
	delete(t.nodes, key)
	return nil
}

// Children returns the addresses of the direct children of parent with the
// given type, sorted by name. An empty childType matches every type.
func (t *Tree) Children(parent Address, childType string) []Address {
	var ret []Address
	prefix := parent.String()
	for _, n := range t.nodes {
		if len(n.addr) != len(parent)+1 || n.addr.Parent().String() != prefix {
			continue
		}
		if childType != "" && n.addr.Type() != childType {
			continue
		}
		ret = append(ret, n.addr)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].String() < ret[j].String()
	})
	return ret
}

// Len returns the number of resources.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	ret := &Tree{nodes: make(map[string]*node, len(t.nodes))}
	for k, n := range t.nodes {
		ret.nodes[k] = &node{
			addr:  append(Address(nil), n.addr...),
			attrs: n.attrs.Clone(),
		}
	}
	return ret
}
