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

// Package script provides the executor for sandboxed script nodes.
package script

import (
	"context"
	"fmt"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/sandbox"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "ScriptExecutor"

// Config is the script node configuration.
type Config struct {
	Code          string   `json:"code" validate:"required"`
	TimeoutMs     int      `json:"timeoutMs" validate:"omitempty,min=1"`
	MemoryLimitMB int      `json:"memoryLimitMb" validate:"omitempty,min=1"`
	ContextKeys   []string `json:"contextKeys"`
}

// ScriptExecutor runs the node code in the sandbox.
type ScriptExecutor struct {
	sandbox sandbox.ExecutorInterface
}

var _ model.NodeExecutorInterface = (*ScriptExecutor)(nil)

// NewScriptExecutor creates an executor running scripts through sb.
func NewScriptExecutor(sb sandbox.ExecutorInterface) *ScriptExecutor {
	return &ScriptExecutor{sandbox: sb}
}

// GetType returns the node type handled by the executor.
func (e *ScriptExecutor) GetType() constants.NodeType {
	return constants.NodeTypeScript
}

// Execute runs the script with the workflow context and the previous node output.
func (e *ScriptExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *ScriptExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	if err := common.DecodeConfig(rawConfig, nil, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}

	var data map[string]any
	var input any
	if execCtx != nil {
		data = execCtx.Data
		input = execCtx.Input
	}
	slice, err := contextSlice(data, cfg.ContextKeys)
	if err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}

	result, err := e.sandbox.Run(ctx, sandbox.Request{
		Script:        cfg.Code,
		Context:       slice,
		Input:         input,
		TimeoutMs:     cfg.TimeoutMs,
		MemoryLimitMB: cfg.MemoryLimitMB,
	})
	if err != nil {
		logger.Debug("Script node failed", log.Error(err))
		return common.FailureFromError(err, "Script execution failed")
	}

	res := model.Success(result.Value).WithField("state", string(result.State))
	if len(result.Logs) > 0 {
		res.WithField("logs", result.Logs)
	}
	res.Duration = result.Duration
	return res
}

// contextSlice returns the selected top-level entries of data, or all of it when keys is empty.
func contextSlice(data map[string]any, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return data, nil
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		value, found, err := interpolate.Resolve(key, data)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &common.ConfigError{Message: fmt.Sprintf("Invalid node configuration: context key %q not found", key)}
		}
		out[key] = value
	}
	return out, nil
}
