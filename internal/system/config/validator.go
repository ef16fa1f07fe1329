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

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	err := v.validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validation error: %w", err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, FormatFieldError(e))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

// FormatFieldError formats a single validation error with field path and details.
func FormatFieldError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", fieldPath, e.Value())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fieldPath, e.Param())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts validator namespace to a more readable field path.
// Example: "Config.HTTP.TimeoutSeconds" -> "http.timeout_seconds"
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}

	result := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		result = append(result, camelToSnake(parts[i]))
	}
	return strings.Join(result, ".")
}

// camelToSnake converts CamelCase to snake_case, keeping acronyms together.
func camelToSnake(s string) string {
	var result strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		isUpper := r >= 'A' && r <= 'Z'
		if i > 0 && isUpper {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
