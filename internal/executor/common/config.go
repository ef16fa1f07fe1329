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

// Package common provides the configuration decoding, outbound client and failure helpers
// shared by the node executors.
package common

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConfigError describes a node configuration that could not be decoded or failed validation.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// explicitPointers keeps a decoded *bool or *int as set by the caller. Without it mergo follows
// the pointer and replaces an explicit false or 0 with the default.
type explicitPointers struct{}

func (explicitPointers) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	if t.Kind() != reflect.Ptr || t.Elem().Kind() == reflect.Struct {
		return nil
	}
	return func(dst, src reflect.Value) error {
		return nil
	}
}

// DecodeConfig decodes raw into out using the json tag names, fills zero fields and unset pointers from defaults and
// validates the result. out and defaults must be pointers to the same struct type; defaults may be nil.
func DecodeConfig(raw map[string]any, defaults any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return &ConfigError{Message: "Invalid node configuration: " + err.Error()}
	}

	if defaults != nil {
		if err := mergo.Merge(out, defaults, mergo.WithTransformers(explicitPointers{})); err != nil {
			return fmt.Errorf("failed to apply configuration defaults: %w", err)
		}
	}

	if err := validate.Struct(out); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return &ConfigError{Message: "Invalid node configuration: " + err.Error()}
		}
		messages := make([]string, 0, len(validationErrs))
		for _, e := range validationErrs {
			messages = append(messages, formatFieldError(e))
		}
		return &ConfigError{Message: "Invalid node configuration: " + strings.Join(messages, "; ")}
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, e.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation '%s'", field, e.Tag())
	}
}
