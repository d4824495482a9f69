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
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Attributes is the typed attribute map of one resource. Values are the
// plain types produced by the TOML and JSON decoders: string, bool, numbers
// (including json.Number), []interface{}, map[string]interface{} and
// Property. A nil value is an undefined attribute.
type Attributes map[string]interface{}

// Property is one key/value pair of a `properties` list.
type Property struct {
	Name  string `json:"name" toml:"name"`
	Value string `json:"value" toml:"value"`
}

// Has reports whether the attribute is present and defined.
func (a Attributes) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// Get returns the attribute value, nil when undefined.
func (a Attributes) Get(name string) interface{} {
	return a[name]
}

// Names returns the defined attribute names in order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k, v := range a {
		if v != nil {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	ret := make(Attributes, len(a))
	for k, v := range a {
		ret[k] = cloneValue(v)
	}
	return ret
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case Attributes:
		return x.Clone()
	case []interface{}:
		l := make([]interface{}, len(x))
		for i, vv := range x {
			l[i] = cloneValue(vv)
		}
		return l
	case []map[string]interface{}:
		l := make([]map[string]interface{}, len(x))
		for i, vv := range x {
			l[i] = cloneValue(vv).(map[string]interface{})
		}
		return l
	case []Property:
		return append([]Property(nil), x...)
	default:
		return v
	}
}

// AsString returns v when it is a string.
func AsString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsScalarString formats any scalar value as a string.
func AsScalarString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return x.String(), true
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case decimal.Decimal:
		return x.String(), true
	}
	return "", false
}

// AsBool accepts booleans and the strings "true"/"false".
func AsBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// AsInt64 accepts integer values, integral floats and numeric strings.
func AsInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || x >= math.MaxInt64 || x < math.MinInt64 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// AsDecimal accepts every numeric representation and numeric strings.
func AsDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Zero, false
}

// AsObject returns v when it is a nested attribute map.
func AsObject(v interface{}) (Attributes, bool) {
	switch x := v.(type) {
	case Attributes:
		return x, true
	case map[string]interface{}:
		return Attributes(x), true
	}
	return nil, false
}

// AsList returns v when it is a list.
func AsList(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []map[string]interface{}:
		l := make([]interface{}, len(x))
		for i, e := range x {
			l[i] = e
		}
		return l, true
	case []Property:
		l := make([]interface{}, len(x))
		for i, e := range x {
			l[i] = e
		}
		return l, true
	}
	return nil, false
}

// AsProperty accepts a Property or a single entry object with a scalar value.
func AsProperty(v interface{}) (Property, bool) {
	switch x := v.(type) {
	case Property:
		return x, x.Name != ""
	case *Property:
		if x == nil {
			return Property{}, false
		}
		return *x, x.Name != ""
	}
	obj, ok := AsObject(v)
	if !ok || len(obj) != 1 {
		return Property{}, false
	}
	for k, vv := range obj {
		s, ok := AsScalarString(vv)
		if !ok || k == "" {
			return Property{}, false
		}
		return Property{Name: k, Value: s}, true
	}
	return Property{}, false
}
