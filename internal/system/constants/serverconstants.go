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

// Package constants defines global constants used across the system module.
package constants

const (
	// LogLevelEnvironmentVariable is the environment variable name for the log level.
	LogLevelEnvironmentVariable = "LOG_LEVEL"
	// DefaultLogLevel is the default log level used if not specified.
	DefaultLogLevel = "info"
)

const (
	// EnvironmentVariable selects the deployment environment (production or development).
	EnvironmentVariable = "CONDUIT_ENV"
	// AllowedDomainsEnvironmentVariable holds a comma-separated outbound domain allowlist.
	AllowedDomainsEnvironmentVariable = "ALLOWED_DOMAINS"
	// OpenAIAPIKeyEnvironmentVariable holds the API key used by the LLM completion node.
	OpenAIAPIKeyEnvironmentVariable = "OPENAI_API_KEY"
)

const (
	// EnvironmentProduction is the production deployment environment.
	EnvironmentProduction = "production"
	// EnvironmentDevelopment is the development deployment environment.
	EnvironmentDevelopment = "development"
)

// ContentTypeHeaderName is the name of the content type header used in HTTP requests.
const ContentTypeHeaderName = "Content-Type"

// UserAgentHeaderName is the name of the user agent header used in HTTP requests.
const UserAgentHeaderName = "User-Agent"

// AuthorizationHeaderName is the name of the authorization header used in HTTP requests.
const AuthorizationHeaderName = "Authorization"

// ContentTypeJSON is the content type for JSON data.
const ContentTypeJSON = "application/json"

// ContentTypeOctetStream is the content type for raw binary data.
const ContentTypeOctetStream = "application/octet-stream"

const (
	// WorkflowRunIDHeaderName carries the workflow run identifier on outbound calls.
	WorkflowRunIDHeaderName = "X-Workflow-Run-Id"
	// WorkflowStepIDHeaderName carries the workflow step identifier on outbound calls.
	WorkflowStepIDHeaderName = "X-Workflow-Step-Id"
	// CorrelationIDHeaderName carries the composite correlation identifier on outbound calls.
	CorrelationIDHeaderName = "X-Correlation-Id"
	// UserAgent is the descriptive user agent attached to outbound calls.
	UserAgent = "Conduit-Workflow-Engine/1.0"
)
