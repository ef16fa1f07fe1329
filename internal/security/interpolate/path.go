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
	"strconv"
	"strings"
)

var (
	// ErrForbiddenPath is returned when a placeholder path names a prototype or host-process segment.
	ErrForbiddenPath = errors.New("forbidden placeholder path")
	// ErrInvalidPath is returned when a placeholder path cannot be parsed.
	ErrInvalidPath = errors.New("invalid placeholder path")
)

var forbiddenSegments = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
	"process":     {},
	"env":         {},
	"global":      {},
	"globalThis":  {},
	"eval":        {},
	"Function":    {},
	"require":     {},
	"module":      {},
}

// ParsePath splits a placeholder path such as `a.b[0].c` or `a["x y"]` into segments.
func ParsePath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var segments []string
	var current strings.Builder
	flush := func() error {
		if current.Len() == 0 {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		segments = append(segments, current.String())
		current.Reset()
		return nil
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			if err := flush(); err != nil {
				return nil, err
			}
		case '[':
			if current.Len() > 0 {
				if err := flush(); err != nil {
					return nil, err
				}
			} else if len(segments) == 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrInvalidPath, path)
			}
			inner := strings.TrimSpace(path[i+1 : i+end])
			if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
				inner = inner[1 : len(inner)-1]
			}
			if inner == "" {
				return nil, fmt.Errorf("%w: empty index in %q", ErrInvalidPath, path)
			}
			segments = append(segments, inner)
			i += end
			if i+1 < len(path) && path[i+1] != '.' && path[i+1] != '[' {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
			}
			if i+1 < len(path) && path[i+1] == '.' {
				i++
				if i+1 >= len(path) {
					return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, path)
				}
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	} else if len(path) > 0 && path[len(path)-1] == '.' {
		return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, path)
	}

	for _, seg := range segments {
		if _, ok := forbiddenSegments[seg]; ok {
			return nil, fmt.Errorf("%w: %q", ErrForbiddenPath, seg)
		}
	}
	return segments, nil
}

// Resolve looks up path in ctx. found is false when any segment is missing.
func Resolve(path string, ctx map[string]any) (value any, found bool, err error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false, err
	}

	var current any = ctx
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false, nil
		}
		current = next
	}
	return current, true, nil
}

// step descends one segment into a JSON-shaped value.
func step(current any, seg string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case map[string]string:
		v, ok := c[seg]
		return v, ok
	case []any:
		idx, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	case []string:
		idx, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	case []map[string]any:
		idx, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, ok := index(seg, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

func index(seg string, length int) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}
