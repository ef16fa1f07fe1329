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

// Package model defines the data structures shared by the node executors and the node execution service.
package model

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/asgardeo/conduit/internal/flow/constants"
)

// ExecutionContext carries the workflow state a node executes against.
type ExecutionContext struct {
	RunID    string `json:"runId"`
	StepID   string `json:"stepId"`
	TenantID string `json:"tenantId,omitempty"`
	// Data is the workflow context placeholders resolve against.
	Data map[string]any `json:"data,omitempty"`
	// Input is the previous node's output.
	Input any `json:"input,omitempty"`
}

// InterpolationContext returns the root map used to resolve placeholders: the workflow data with
// the previous node's output under "input" unless the data already defines it.
func (c *ExecutionContext) InterpolationContext() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	root := make(map[string]any, len(c.Data)+1)
	for k, v := range c.Data {
		root[k] = v
	}
	if _, ok := root["input"]; !ok && c.Input != nil {
		root["input"] = c.Input
	}
	return root
}

// NodeExecutorInterface is implemented by every node executor. Execute never panics past its
// boundary and reports every failure in the returned result.
type NodeExecutorInterface interface {
	GetType() constants.NodeType
	Execute(ctx context.Context, config map[string]any, execCtx *ExecutionContext) *NodeResult
}

// reservedResultKeys are the envelope keys node-specific fields cannot override.
var reservedResultKeys = map[string]struct{}{
	"status": {}, "data": {}, "error": {}, "errorType": {}, "durationMs": {},
}

// NodeResult is the envelope returned to the scheduler. Node-specific fields such as statusCode,
// headers and rowCount are flattened into the top-level JSON object.
type NodeResult struct {
	Status    constants.NodeStatus
	Data      any
	Error     string
	ErrorType constants.ErrorType
	Fields    map[string]any
	Duration  time.Duration
}

// Success returns a successful result carrying data.
func Success(data any) *NodeResult {
	return &NodeResult{Status: constants.NodeStatusSuccess, Data: data, Fields: map[string]any{}}
}

// Failure returns a failed result.
func Failure(errorType constants.ErrorType, message string) *NodeResult {
	return &NodeResult{
		Status:    constants.NodeStatusError,
		Error:     message,
		ErrorType: errorType,
		Fields:    map[string]any{},
	}
}

// WithField sets a node-specific field and returns the result.
func (r *NodeResult) WithField(key string, value any) *NodeResult {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields[key] = value
	return r
}

// IsSuccess reports whether the node completed.
func (r *NodeResult) IsSuccess() bool {
	return r.Status == constants.NodeStatusSuccess
}

// MarshalJSON flattens Fields into the envelope.
func (r NodeResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		if _, reserved := reservedResultKeys[k]; !reserved {
			out[k] = v
		}
	}
	out["status"] = r.Status
	if r.Data != nil {
		out["data"] = r.Data
	}
	if r.Status == constants.NodeStatusError {
		out["error"] = r.Error
		out["errorType"] = r.ErrorType
	}
	if r.Duration > 0 {
		out["durationMs"] = r.Duration.Milliseconds()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *NodeResult) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = NodeResult{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "status":
			s, _ := v.(string)
			r.Status = constants.NodeStatus(s)
		case "data":
			r.Data = v
		case "error":
			r.Error, _ = v.(string)
		case "errorType":
			s, _ := v.(string)
			r.ErrorType = constants.ErrorType(s)
		case "durationMs":
			if ms, ok := v.(float64); ok {
				r.Duration = time.Duration(ms) * time.Millisecond
			}
		default:
			r.Fields[k] = v
		}
	}
	return nil
}

// NodeRequest is the body of a node execution request.
type NodeRequest struct {
	NodeType constants.NodeType `json:"nodeType"`
	Config   map[string]any     `json:"config"`
	Context  ExecutionContext   `json:"context"`
}

// NodeTypesResponse lists the registered node types.
type NodeTypesResponse struct {
	NodeTypes []constants.NodeType `json:"nodeTypes"`
}
