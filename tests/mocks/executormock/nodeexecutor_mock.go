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

// Package executormock provides mock implementations of the node executor interfaces.
package executormock

import (
	"context"
	"sync"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
)

// NodeCall records a single Execute invocation.
type NodeCall struct {
	Config  map[string]any
	ExecCtx *model.ExecutionContext
}

// MockNodeExecutor is a mock implementation of the NodeExecutorInterface.
type MockNodeExecutor struct {
	// NodeType is returned by GetType.
	NodeType constants.NodeType

	// MockExecute defines the behavior for the Execute method. A nil value returns an empty success.
	MockExecute func(ctx context.Context, config map[string]any, execCtx *model.ExecutionContext) *model.NodeResult

	mu    sync.Mutex
	calls []NodeCall
}

var _ model.NodeExecutorInterface = (*MockNodeExecutor)(nil)

// GetType mocks the GetType method of the NodeExecutorInterface.
func (m *MockNodeExecutor) GetType() constants.NodeType {
	return m.NodeType
}

// Execute mocks the Execute method of the NodeExecutorInterface.
func (m *MockNodeExecutor) Execute(ctx context.Context, config map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	m.mu.Lock()
	m.calls = append(m.calls, NodeCall{Config: config, ExecCtx: execCtx})
	m.mu.Unlock()

	if m.MockExecute != nil {
		return m.MockExecute(ctx, config, execCtx)
	}
	return model.Success(nil)
}

// Calls returns the recorded Execute invocations.
func (m *MockNodeExecutor) Calls() []NodeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NodeCall(nil), m.calls...)
}
