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

package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/sandbox"
)

type ScriptExecutorTestSuite struct {
	suite.Suite
	executor *ScriptExecutor
	execCtx  *model.ExecutionContext
}

func TestScriptExecutorSuite(t *testing.T) {
	suite.Run(t, new(ScriptExecutorTestSuite))
}

func (suite *ScriptExecutorTestSuite) SetupTest() {
	sb, err := sandbox.NewExecutor(sandbox.Config{Timeout: 200 * time.Millisecond, MaxTimeout: time.Second},
		sandbox.Capabilities{Helpers: sandbox.DefaultHelpers()})
	require.NoError(suite.T(), err)
	suite.executor = NewScriptExecutor(sb)
	suite.execCtx = &model.ExecutionContext{
		RunID:  "run-1",
		StepID: "step-4",
		Data: map[string]any{
			"order":    map[string]any{"id": "A-1", "items": []any{2, 3}},
			"customer": map[string]any{"email": "a@example.com"},
		},
		Input: map[string]any{"discount": 1},
	}
}

func (suite *ScriptExecutorTestSuite) TestGetType() {
	assert.Equal(suite.T(), constants.NodeTypeScript, suite.executor.GetType())
}

func (suite *ScriptExecutorTestSuite) TestResultAndLogs() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"code": `var total = context.order.items.reduce(function (a, b) { return a + b; }, 0) - input.discount;
			console.log("total", total);
			result = { id: context.order.id, total: total };`,
	}, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), map[string]any{"id": "A-1", "total": float64(4)}, res.Data)
	assert.Equal(suite.T(), string(sandbox.StateCompleted), res.Fields["state"])
	assert.Len(suite.T(), res.Fields["logs"], 1)
	assert.Positive(suite.T(), res.Duration)
}

func (suite *ScriptExecutorTestSuite) TestContextKeysLimitExposure() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"code":        `result = { keys: Object.keys(context).sort(), hasCustomer: typeof context.customer !== "undefined" };`,
		"contextKeys": []any{"order"},
	}, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), map[string]any{"keys": []any{"order"}, "hasCustomer": false}, res.Data)

	res = suite.executor.Execute(context.Background(), map[string]any{
		"code":        `result = 1;`,
		"contextKeys": []any{"missing"},
	}, suite.execCtx)
	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
}

func (suite *ScriptExecutorTestSuite) TestBlockedConstruct() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"code": `var fs = require("fs"); result = fs;`,
	}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Equal(suite.T(), string(sandbox.CategoryValidation), res.Fields["category"])
}

func (suite *ScriptExecutorTestSuite) TestTimeout() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"code":      `while (true) {}`,
		"timeoutMs": 50,
	}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeTimeout, res.ErrorType)
}

func (suite *ScriptExecutorTestSuite) TestRuntimeError() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"code": `throw new Error("bad order");`,
	}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), string(sandbox.CategoryRuntime), res.Fields["category"])
}

func (suite *ScriptExecutorTestSuite) TestMissingCode() {
	res := suite.executor.Execute(context.Background(), map[string]any{}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
}

func (suite *ScriptExecutorTestSuite) TestNilExecutionContext() {
	res := suite.executor.Execute(context.Background(), map[string]any{"code": `result = typeof input;`}, nil)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), "object", res.Data)
}
