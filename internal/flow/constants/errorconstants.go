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

package constants

import (
	"github.com/asgardeo/conduit/internal/system/error/apierror"
	"github.com/asgardeo/conduit/internal/system/error/serviceerror"
)

// Client error structs

// APIErrorNodeRequestJSONDecodeError is returned when the request body is not valid JSON.
var APIErrorNodeRequestJSONDecodeError = apierror.ErrorResponse{
	Code:        "NES-60001",
	Message:     "Invalid request payload",
	Description: "Failed to decode request payload",
}

// ErrorUnknownNodeType is returned when no executor is registered for the node type.
var ErrorUnknownNodeType = serviceerror.ServiceError{
	Code:             "NES-60002",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "No executor is registered for the node type",
}

// ErrorInvalidExecutionContext is returned when the workflow context is rejected.
var ErrorInvalidExecutionContext = serviceerror.ServiceError{
	Code:             "NES-60003",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "The execution context contains unsafe keys or values",
}

// ErrorMissingNodeType is returned when the request does not name a node type.
var ErrorMissingNodeType = serviceerror.ServiceError{
	Code:             "NES-60004",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "Node type is required",
}

// Server error structs

// ErrorNodeExecutionFailed is returned when an executor fails unexpectedly.
var ErrorNodeExecutionFailed = serviceerror.ServiceError{
	Code:             "NES-65001",
	Type:             serviceerror.ServerErrorType,
	Error:            "Something went wrong",
	ErrorDescription: "Node execution failed unexpectedly",
}
