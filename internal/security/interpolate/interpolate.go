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

// Package interpolate resolves {{path}} placeholders against a workflow context and sanitizes
// the substituted values for the context they are rendered into.
package interpolate

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "Interpolation"

// ErrPlaceholderInLiteral is returned when a SQL placeholder appears inside a quoted literal.
var ErrPlaceholderInLiteral = errors.New("placeholders are not allowed inside quoted SQL literals")

// ErrUnterminatedPlaceholder is returned when "{{" has no matching "}}".
var ErrUnterminatedPlaceholder = errors.New("unterminated placeholder")

// ErrUnterminatedLiteral is returned when a quoted SQL literal or identifier is never closed.
var ErrUnterminatedLiteral = errors.New("unterminated quoted literal in SQL statement")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// HasPlaceholders reports whether s contains at least one placeholder.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Interpolate returns a copy of value with every placeholder resolved against ctx. Strings inside
// maps and slices are processed recursively; ctx is never modified. With ContextAuto the sanitizer
// is chosen per field by Classify using the enclosing map key.
func Interpolate(value any, ctx map[string]any, sc SecurityContext) (any, error) {
	if sc == "" {
		sc = ContextAuto
	}
	e := &engine{
		ctx:    ctx,
		sc:     sc,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	return e.value("", value)
}

// InterpolateString is Interpolate for a single string field named key.
func InterpolateString(key, template string, ctx map[string]any, sc SecurityContext) (string, error) {
	if sc == "" {
		sc = ContextAuto
	}
	e := &engine{
		ctx:    ctx,
		sc:     sc,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	out, err := e.render(key, template)
	if err != nil {
		return "", err
	}
	return out, nil
}

type engine struct {
	ctx    map[string]any
	sc     SecurityContext
	logger *log.Logger
}

func (e *engine) value(key string, v any) (any, error) {
	switch t := v.(type) {
	case string:
		return e.str(key, t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range sortedKeys(t) {
			r, err := e.value(k, t[k])
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			r, err := e.render(k, s)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := e.value(key, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			r, err := e.render(key, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// str handles a string field, preserving the value type for a whole-string placeholder in general context.
func (e *engine) str(key, s string) (any, error) {
	sc := e.effective(key, s)
	if sc == ContextGeneral {
		if loc := placeholderPattern.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
			path := s[loc[2]:loc[3]]
			v, found, err := Resolve(path, e.ctx)
			if err != nil {
				return nil, err
			}
			if !found {
				e.warnUnresolved(path)
				return s, nil
			}
			if str, ok := v.(string); ok {
				return SanitizeGeneral(str), nil
			}
			return v, nil
		}
	}
	return e.render(key, s)
}

// render substitutes every placeholder in s with its sanitized string form.
func (e *engine) render(key, s string) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	sc := e.effective(key, s)
	whole := len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		last = m[1]

		path := s[m[2]:m[3]]
		v, found, err := Resolve(path, e.ctx)
		if err != nil {
			return "", err
		}
		if !found {
			e.warnUnresolved(path)
			b.WriteString(s[m[0]:m[1]])
			continue
		}

		text := Stringify(v)
		if sc == ContextURL {
			b.WriteString(escapeURLValue(text, s[:m[0]], whole))
			continue
		}
		b.WriteString(Sanitize(text, sc))
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func (e *engine) effective(key, template string) SecurityContext {
	if e.sc != ContextAuto {
		return e.sc
	}
	return Classify(key, template)
}

func (e *engine) warnUnresolved(path string) {
	e.logger.Warn("Unresolved placeholder left as-is", log.String("path", path))
}

// Stringify renders a resolved value as text. Maps and slices are rendered as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(encoded)
	}
}

// InterpolateSQL replaces every placeholder in statement with a distinct named parameter
// (@p0, @p1, ...) and returns the bound values. Values never appear in the returned text.
// Unresolved paths bind NULL. Placeholders inside quoted literals or identifiers are rejected.
func InterpolateSQL(statement string, ctx map[string]any) (string, map[string]any, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))
	params := map[string]any{}

	var b strings.Builder
	var quote byte
	n := 0
	for i := 0; i < len(statement); i++ {
		c := statement[i]

		if quote != 0 {
			if c == '{' && i+1 < len(statement) && statement[i+1] == '{' {
				return "", nil, ErrPlaceholderInLiteral
			}
			b.WriteByte(c)
			if c == quote {
				// A doubled quote is an escaped quote, not the end of the literal.
				if i+1 < len(statement) && statement[i+1] == quote {
					b.WriteByte(statement[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '[':
			quote = ']'
			b.WriteByte(c)
		case c == '{' && i+1 < len(statement) && statement[i+1] == '{':
			end := strings.Index(statement[i+2:], "}}")
			if end < 0 {
				return "", nil, ErrUnterminatedPlaceholder
			}
			path := strings.TrimSpace(statement[i+2 : i+2+end])
			v, found, err := Resolve(path, ctx)
			if err != nil {
				return "", nil, err
			}
			if !found {
				logger.Warn("Unresolved SQL placeholder bound as NULL", log.String("path", path))
				v = nil
			}
			name := "p" + strconv.Itoa(n)
			n++
			params[name] = sqlValue(v)
			b.WriteString("@" + name)
			i += 2 + end + 1
		default:
			b.WriteByte(c)
		}
	}
	if quote != 0 {
		return "", nil, ErrUnterminatedLiteral
	}
	return b.String(), params, nil
}

// sqlValue converts a resolved value into a driver-bindable value.
func sqlValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case json.Number:
		return t.String()
	default:
		return Stringify(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
