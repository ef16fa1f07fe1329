/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package interpolate

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnsafeContext is returned when an execution context carries keys or values that are not plain data.
var ErrUnsafeContext = errors.New("unsafe execution context")

const maxContextDepth = 64

// dangerousTopLevelKeys name host-process, global-scope and dynamic-evaluation objects.
var dangerousTopLevelKeys = map[string]struct{}{
	"process":     {},
	"global":      {},
	"globalThis":  {},
	"window":      {},
	"self":        {},
	"eval":        {},
	"Function":    {},
	"require":     {},
	"module":      {},
	"constructor": {},
	"__proto__":   {},
	"prototype":   {},
}

var prototypeKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// ValidateContext rejects contexts whose keys reference the host process, global scope or
// dynamic evaluation, that carry prototype keys at any depth, or that hold non-data values.
func ValidateContext(ctx map[string]any) error {
	for k, v := range ctx {
		if _, ok := dangerousTopLevelKeys[k]; ok {
			return fmt.Errorf("%w: key %q is not allowed", ErrUnsafeContext, k)
		}
		if err := validateValue(k, v, 1); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, v any, depth int) error {
	if depth > maxContextDepth {
		return fmt.Errorf("%w: nesting deeper than %d at %q", ErrUnsafeContext, maxContextDepth, path)
	}

	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case map[string]any:
		for k, item := range t {
			if _, ok := prototypeKeys[k]; ok {
				return fmt.Errorf("%w: key %q at %q is not allowed", ErrUnsafeContext, k, path)
			}
			if err := validateValue(path+"."+k, item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range t {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr, reflect.Complex64,
		reflect.Complex128:
		return fmt.Errorf("%w: non-data value at %q", ErrUnsafeContext, path)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return validateValue(path, rv.Elem().Interface(), depth+1)
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			if _, ok := prototypeKeys[k]; ok {
				return fmt.Errorf("%w: key %q at %q is not allowed", ErrUnsafeContext, k, path)
			}
			if err := validateValue(path+"."+k, iter.Value().Interface(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			if err := validateValue(path+"."+rv.Type().Field(i).Name, rv.Field(i).Interface(), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
