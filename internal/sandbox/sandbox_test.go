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

package sandbox

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/system/config"
)

type SandboxTestSuite struct {
	suite.Suite
	executor *Executor
}

func TestSandboxSuite(t *testing.T) {
	suite.Run(t, new(SandboxTestSuite))
}

func (suite *SandboxTestSuite) SetupTest() {
	executor, err := NewExecutor(Config{Timeout: 200 * time.Millisecond, MaxTimeout: time.Second, MaxConcurrent: 4},
		Capabilities{
			Env:     map[string]string{"WORKFLOW_REGION": "eu-west-1"},
			Helpers: DefaultHelpers(),
		})
	require.NoError(suite.T(), err)
	suite.executor = executor
}

func (suite *SandboxTestSuite) run(script string) (*Result, *ScriptError) {
	res, err := suite.executor.Run(context.Background(), Request{
		Script:  script,
		Context: map[string]any{"order": map[string]any{"id": "A-1", "items": []any{1, 2, 3}}},
		Input:   map[string]any{"total": 42},
	})
	if err != nil {
		scriptErr, ok := err.(*ScriptError)
		require.True(suite.T(), ok, "unexpected error type %T", err)
		return nil, scriptErr
	}
	return res, nil
}

func (suite *SandboxTestSuite) TestResultBinding() {
	res, err := suite.run(`
		var sum = context.order.items.reduce(function (a, b) { return a + b; }, 0);
		result = { id: context.order.id, sum: sum, total: input.total, region: env.WORKFLOW_REGION };`)
	require.Nil(suite.T(), err)
	assert.Equal(suite.T(), StateCompleted, res.State)
	assert.Equal(suite.T(), map[string]any{"id": "A-1", "sum": float64(6), "total": float64(42),
		"region": "eu-west-1"}, res.Value)
}

func (suite *SandboxTestSuite) TestUnsetResultIsEmpty() {
	res, err := suite.run(`var x = 1 + 1;`)
	require.Nil(suite.T(), err)
	assert.Nil(suite.T(), res.Value)

	res, err = suite.run(`let result = [1, "two"];`)
	require.Nil(suite.T(), err)
	assert.Equal(suite.T(), []any{float64(1), "two"}, res.Value)
}

func (suite *SandboxTestSuite) TestStrictModeAssignsResult() {
	res, err := suite.run(`"use strict"; result = 42;`)
	require.Nil(suite.T(), err)
	assert.Equal(suite.T(), float64(42), res.Value)

	res, err = suite.run(`"use strict"; var x = 1;`)
	require.Nil(suite.T(), err)
	assert.Nil(suite.T(), res.Value)
}

func (suite *SandboxTestSuite) TestContextIsReadOnlySnapshot() {
	ctx := map[string]any{"order": map[string]any{"id": "A-1"}}
	res, err := suite.executor.Run(context.Background(), Request{
		Script: `"use strict";
			var failed = false;
			try { context.order.id = "B-2"; } catch (e) { failed = true; }
			result = { failed: failed, id: context.order.id };`,
		Context: ctx,
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), map[string]any{"failed": true, "id": "A-1"}, res.Value)
	assert.Equal(suite.T(), "A-1", ctx["order"].(map[string]any)["id"])
}

func (suite *SandboxTestSuite) TestHelpersAndConsole() {
	res, err := suite.run(`
		console.log("hashing", 1);
		result = { h: helpers.sha256("abc"), b: helpers.base64Decode(helpers.base64Encode("hi")),
			u: helpers.uuid().length, n: typeof helpers.now() };`)
	require.Nil(suite.T(), err)
	value := res.Value.(map[string]any)
	assert.Equal(suite.T(), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", value["h"])
	assert.Equal(suite.T(), "hi", value["b"])
	assert.Equal(suite.T(), float64(36), value["u"])
	assert.Equal(suite.T(), "string", value["n"])
	assert.Equal(suite.T(), []string{"hashing 1"}, res.Logs)
}

func (suite *SandboxTestSuite) TestNoHelpersWithoutCapability() {
	executor, err := NewExecutor(Config{}, Capabilities{})
	require.NoError(suite.T(), err)
	res, err := executor.Run(context.Background(), Request{Script: `result = typeof helpers + "," + typeof require`})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "undefined,undefined", res.Value)
}

func (suite *SandboxTestSuite) TestStaticRulesRejectBeforeCompile() {
	scripts := []string{
		`var fs = require("fs");`,
		`import x from "y";`,
		`result = process.env;`,
		`result = globalThis;`,
		`eval("1")`,
		`new Function("return 1")()`,
		`({}).constructor.constructor("return this")()`,
		`var p = {}.__proto__;`,
		`Reflect.ownKeys({})`,
		`new Proxy({}, {})`,
		strings.Repeat("a", defaultMaxScriptBytes+1),
		"   ",
	}
	for _, script := range scripts {
		_, err := suite.run(script)
		require.NotNil(suite.T(), err, script)
		assert.Equal(suite.T(), CategoryValidation, err.Category, script)
	}
	assert.EqualValues(suite.T(), 0, suite.executor.Active())
}

func (suite *SandboxTestSuite) TestCompilationError() {
	_, err := suite.run(`result = ;`)
	require.NotNil(suite.T(), err)
	assert.Equal(suite.T(), CategoryCompilation, err.Category)
	assert.True(suite.T(), strings.HasPrefix(err.Message, "Syntax error"))
}

func (suite *SandboxTestSuite) TestRuntimeErrorIsSanitized() {
	_, err := suite.run(`function inner() { throw new Error("boom at /srv/conduit/secret.js"); } inner();`)
	require.NotNil(suite.T(), err)
	assert.Equal(suite.T(), CategoryRuntime, err.Category)
	assert.Contains(suite.T(), err.Message, "boom")
	assert.NotContains(suite.T(), err.Message, "/srv/conduit")
	assert.NotContains(suite.T(), err.Message, "inner")
}

func (suite *SandboxTestSuite) TestStackDepthCap() {
	_, err := suite.run(`function f(n) { return f(n + 1); } f(0);`)
	require.NotNil(suite.T(), err)
	assert.Equal(suite.T(), CategoryRuntime, err.Category)
}

func (suite *SandboxTestSuite) TestInfiniteLoopTimesOutAndSandboxIsReleased() {
	start := time.Now()
	_, err := suite.run(`while (true) {}`)
	elapsed := time.Since(start)

	require.NotNil(suite.T(), err)
	assert.Equal(suite.T(), CategoryTimeout, err.Category)
	assert.Less(suite.T(), elapsed, 200*time.Millisecond+time.Second)
	assert.EqualValues(suite.T(), 0, suite.executor.Active())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := suite.executor.Run(context.Background(), Request{Script: `result = 1 + 1;`})
			if assert.NoError(suite.T(), err) {
				assert.Equal(suite.T(), float64(2), res.Value)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(suite.T(), 0, suite.executor.Active())
}

func (suite *SandboxTestSuite) TestRequestTimeoutIsCapped() {
	start := time.Now()
	_, err := suite.executor.Run(context.Background(), Request{Script: `while (true) {}`, TimeoutMs: 60000})
	require.Error(suite.T(), err)
	assert.Less(suite.T(), time.Since(start), 3*time.Second)
}

func (suite *SandboxTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := suite.executor.Run(ctx, Request{Script: `while (true) {}`, TimeoutMs: 1000})
	var scriptErr *ScriptError
	require.ErrorAs(suite.T(), err, &scriptErr)
	assert.Equal(suite.T(), CategoryTimeout, scriptErr.Category)
}

func (suite *SandboxTestSuite) TestMemoryLimit() {
	executor, err := NewExecutor(Config{Timeout: 10 * time.Second, MaxTimeout: 10 * time.Second, MemoryLimitMB: 16},
		Capabilities{})
	require.NoError(suite.T(), err)

	_, err = executor.Run(context.Background(), Request{Script: `
		var hoard = [];
		while (true) { hoard.push(new Array(100000).fill("x")); }`})
	var scriptErr *ScriptError
	require.ErrorAs(suite.T(), err, &scriptErr)
	assert.Equal(suite.T(), CategoryMemoryLimit, scriptErr.Category)
	assert.EqualValues(suite.T(), 0, executor.Active())
}

func (suite *SandboxTestSuite) TestCapacityExhausted() {
	executor, err := NewExecutor(Config{Timeout: 500 * time.Millisecond, MaxConcurrent: 1}, Capabilities{})
	require.NoError(suite.T(), err)

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = executor.Run(context.Background(), Request{Script: `while (true) {}`})
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = executor.Run(ctx, Request{Script: `result = 1;`})
	var scriptErr *ScriptError
	require.ErrorAs(suite.T(), err, &scriptErr)
	assert.Equal(suite.T(), CategoryCapacity, scriptErr.Category)
}

func (suite *SandboxTestSuite) TestFilterEnv() {
	env := FilterEnv([]string{
		"WORKFLOW_REGION=eu",
		"WORKFLOW_API_KEY=k",
		"WORKFLOW_DB_PASSWORD=p",
		"WORKFLOW_TOKEN_TTL=5",
		"HOME=/root",
		"PATH=/usr/bin",
		"malformed",
	}, []string{"WORKFLOW_"})
	assert.Equal(suite.T(), map[string]string{"WORKFLOW_REGION": "eu"}, env)
	assert.Empty(suite.T(), FilterEnv([]string{"WORKFLOW_REGION=eu"}, nil))
}

func (suite *SandboxTestSuite) TestConfigFromServer() {
	cfg := ConfigFromServer(config.DefaultConfig().Sandbox)
	assert.Equal(suite.T(), 5*time.Second, cfg.Timeout)
	assert.Equal(suite.T(), 30*time.Second, cfg.MaxTimeout)
	assert.Equal(suite.T(), 8, cfg.MaxConcurrent)
}
