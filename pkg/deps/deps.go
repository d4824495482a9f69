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

package deps

import (
	"reflect"

	"github.com/pingcap/errors"
	"go.uber.org/dig"
)

// Deps is the dependency container handed to services when they start.
// Services declare what they need with a struct embedding dig.In and call
// Fill.
type Deps struct {
	container *dig.Container
}

// NewDeps creates a new Deps instance
func NewDeps() *Deps {
	return &Deps{
		container: dig.New(),
	}
}

// Provide accepts a constructor and build a value into container
func (d *Deps) Provide(constructor interface{}) error {
	return errors.Trace(d.container.Provide(constructor))
}

// Supply registers already constructed values. The static type of each value
// is the type it is provided as, so interfaces must be supplied through a
// pointer-free constructor with Provide instead.
func (d *Deps) Supply(values ...interface{}) error {
	for _, v := range values {
		if v == nil {
			return errors.New("cannot supply a nil value")
		}
		val := reflect.ValueOf(v)
		fnTp := reflect.FuncOf(nil, []reflect.Type{val.Type()}, false)
		fn := reflect.MakeFunc(fnTp, func([]reflect.Value) []reflect.Value {
			return []reflect.Value{val}
		})
		if err := d.container.Provide(fn.Interface()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Fill injects dependencies from Deps to params
func (d *Deps) Fill(params interface{}) error {
	invokeFnTp := reflect.FuncOf(
		[]reflect.Type{reflect.TypeOf(params).Elem()},
		[]reflect.Type{reflect.TypeOf(new(error)).Elem()},
		false)
	invokeFn := reflect.MakeFunc(invokeFnTp, func(args []reflect.Value) (results []reflect.Value) {
		defer func() {
			if v := recover(); v != nil {
				results = []reflect.Value{reflect.ValueOf(errors.Errorf("internal error: %v", v))}
			}
		}()
		reflect.ValueOf(params).Elem().Set(args[0])
		return []reflect.Value{reflect.Zero(reflect.TypeOf(new(error)).Elem())}
	})
	if err := d.container.Invoke(invokeFn.Interface()); err != nil {
		return errors.Trace(err)
	}
	return nil
}
