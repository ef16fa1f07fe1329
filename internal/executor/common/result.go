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

package common

import (
	"errors"
	"fmt"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/sandbox"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/sqlguard"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/log"
)

// SafeExecute runs fn and converts a panic into an internal failure so that no panic crosses the
// executor boundary.
func SafeExecute(nodeType constants.NodeType, fn func() *model.NodeResult) (result *model.NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "NodeExecutor"),
				log.String(log.LoggerKeyNodeType, string(nodeType)))
			logger.Error("Recovered from executor panic", log.String("panic", fmt.Sprint(r)))
			result = model.Failure(constants.ErrorTypeInternal, "Internal error while executing node")
		}
	}()
	result = fn()
	if result == nil {
		result = model.Failure(constants.ErrorTypeInternal, "Node produced no result")
	}
	return result
}

// FailureFromError maps the typed errors of the security and sandbox layers to a failed result.
// Unknown errors become execution failures carrying fallback as the message.
func FailureFromError(err error, fallback string) *model.NodeResult {
	var configErr *ConfigError
	var policyErr *urlguard.PolicyError
	var validationErr *sqlguard.ValidationError
	var scriptErr *sandbox.ScriptError

	switch {
	case errors.As(err, &configErr):
		return model.Failure(constants.ErrorTypeValidation, configErr.Message)
	case errors.As(err, &policyErr):
		return model.Failure(constants.ErrorTypePolicy, policyErr.Message)
	case errors.As(err, &validationErr):
		return model.Failure(constants.ErrorTypeValidation, validationErr.Message)
	case errors.As(err, &scriptErr):
		return failureFromScriptError(scriptErr)
	case errors.Is(err, interpolate.ErrForbiddenPath), errors.Is(err, interpolate.ErrInvalidPath),
		errors.Is(err, interpolate.ErrPlaceholderInLiteral), errors.Is(err, interpolate.ErrUnterminatedPlaceholder),
		errors.Is(err, interpolate.ErrUnterminatedLiteral), errors.Is(err, interpolate.ErrUnsafeContext):
		return model.Failure(constants.ErrorTypeValidation, err.Error())
	case errors.Is(err, sqlguard.ErrTimeout):
		return model.Failure(constants.ErrorTypeTimeout, err.Error())
	case errors.Is(err, sqlguard.ErrAuthenticationFailed), errors.Is(err, sqlguard.ErrPermissionDenied),
		errors.Is(err, sqlguard.ErrConnectionFailed), errors.Is(err, sqlguard.ErrExecutionFailed),
		errors.Is(err, sqlguard.ErrCancelled):
		return model.Failure(constants.ErrorTypeExecution, err.Error())
	default:
		return model.Failure(constants.ErrorTypeExecution, fallback)
	}
}

func failureFromScriptError(err *sandbox.ScriptError) *model.NodeResult {
	var errorType constants.ErrorType
	switch err.Category {
	case sandbox.CategoryValidation, sandbox.CategoryCompilation:
		errorType = constants.ErrorTypeValidation
	case sandbox.CategoryTimeout:
		errorType = constants.ErrorTypeTimeout
	case sandbox.CategoryMemoryLimit:
		errorType = constants.ErrorTypeMemoryLimit
	case sandbox.CategoryInternal:
		errorType = constants.ErrorTypeInternal
	default:
		errorType = constants.ErrorTypeExecution
	}
	return model.Failure(errorType, err.Message).WithField("category", string(err.Category))
}
