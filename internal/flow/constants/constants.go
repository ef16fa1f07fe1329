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

// Package constants defines the constants used by the node executors and the node execution service.
package constants

// NodeType identifies a node executor.
type NodeType string

const (
	// NodeTypeHTTPRequest performs a guarded outbound HTTP request.
	NodeTypeHTTPRequest NodeType = "http_request"
	// NodeTypeSQLAdmin runs a closed set of administrative database actions.
	NodeTypeSQLAdmin NodeType = "sql_admin"
	// NodeTypeTabularIngest parses delimited text into rows or records.
	NodeTypeTabularIngest NodeType = "tabular_ingest"
	// NodeTypeFileTransfer uploads a stored artifact to a remote endpoint.
	NodeTypeFileTransfer NodeType = "file_transfer"
	// NodeTypeLLMCompletion calls a language model completion API.
	NodeTypeLLMCompletion NodeType = "llm_completion"
	// NodeTypeQueryAPI posts a query to an embedded query service.
	NodeTypeQueryAPI NodeType = "query_api"
	// NodeTypeScript runs a script in the sandbox.
	NodeTypeScript NodeType = "script"
)

// NodeStatus is the outcome of a node execution.
type NodeStatus string

const (
	// NodeStatusSuccess indicates that the node completed.
	NodeStatusSuccess NodeStatus = "success"
	// NodeStatusError indicates that the node failed. The result carries an error and an error type.
	NodeStatusError NodeStatus = "error"
)

// ErrorType classifies a failed node execution for the scheduler's retry and branch policy.
type ErrorType string

const (
	// ErrorTypePolicy is a target rejected by the outbound policy before any network access.
	ErrorTypePolicy ErrorType = "policy_blocked"
	// ErrorTypeValidation is an invalid configuration, identifier, statement, script or context.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeHTTPStatus is a remote response outside the 2xx range.
	ErrorTypeHTTPStatus ErrorType = "non_2xx_response"
	// ErrorTypeNoResponse is a request that was sent but got no response.
	ErrorTypeNoResponse ErrorType = "no_response"
	// ErrorTypeRequestSetup is a request that could not be built or sent.
	ErrorTypeRequestSetup ErrorType = "request_setup"
	// ErrorTypeTimeout is an execution that exceeded its time limit.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeMemoryLimit is a script that exceeded its memory ceiling.
	ErrorTypeMemoryLimit ErrorType = "memory_limit"
	// ErrorTypeExecution is a failure of the remote system or driver.
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeInternal is an unexpected failure inside an executor.
	ErrorTypeInternal ErrorType = "internal"
)
