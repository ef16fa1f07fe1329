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

package nodeexec

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/system/metrics"
	"github.com/asgardeo/conduit/tests/mocks/executormock"
)

type NodeExecServiceTestSuite struct {
	suite.Suite
	recorder *tracetest.SpanRecorder
	script   *executormock.MockNodeExecutor
	http     *executormock.MockNodeExecutor
	service  NodeExecServiceInterface
	execCtx  *model.ExecutionContext
}

func TestNodeExecServiceSuite(t *testing.T) {
	suite.Run(t, new(NodeExecServiceTestSuite))
}

func (suite *NodeExecServiceTestSuite) SetupTest() {
	suite.recorder = tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(suite.recorder))

	suite.script = &executormock.MockNodeExecutor{NodeType: constants.NodeTypeScript}
	suite.http = &executormock.MockNodeExecutor{NodeType: constants.NodeTypeHTTPRequest}
	suite.service = NewNodeExecService(tp, suite.script, suite.http)
	suite.execCtx = &model.ExecutionContext{
		RunID:  "run-7",
		StepID: "step-2",
		Data:   map[string]any{"order": map[string]any{"id": "A-1"}},
	}
}

func attributeValue(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func (suite *NodeExecServiceTestSuite) TestGetNodeTypesSorted() {
	assert.Equal(suite.T(), []constants.NodeType{constants.NodeTypeHTTPRequest, constants.NodeTypeScript},
		suite.service.GetNodeTypes())
}

func (suite *NodeExecServiceTestSuite) TestExecuteDispatchesToExecutor() {
	suite.script.MockExecute = func(ctx context.Context, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult {
		return model.Success(map[string]any{"id": execCtx.Data["order"].(map[string]any)["id"]})
	}
	before := testutil.ToFloat64(metrics.NodeExecutionsTotal.WithLabelValues("script", "success", ""))

	res := suite.service.Execute(context.Background(), constants.NodeTypeScript,
		map[string]any{"code": "result = 1;"}, suite.execCtx)

	require.True(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), map[string]any{"id": "A-1"}, res.Data)
	assert.Positive(suite.T(), res.Duration)
	require.Len(suite.T(), suite.script.Calls(), 1)
	assert.Equal(suite.T(), "result = 1;", suite.script.Calls()[0].Config["code"])
	assert.Empty(suite.T(), suite.http.Calls())

	assert.Equal(suite.T(), before+1,
		testutil.ToFloat64(metrics.NodeExecutionsTotal.WithLabelValues("script", "success", "")))

	spans := suite.recorder.Ended()
	require.Len(suite.T(), spans, 1)
	assert.Equal(suite.T(), "node.execute", spans[0].Name())
	assert.Equal(suite.T(), codes.Ok, spans[0].Status().Code)
	assert.Equal(suite.T(), "script", attributeValue(spans[0].Attributes(), "conduit.node.type"))
	assert.Equal(suite.T(), "run-7", attributeValue(spans[0].Attributes(), "conduit.run.id"))
	assert.Equal(suite.T(), "step-2", attributeValue(spans[0].Attributes(), "conduit.step.id"))
}

func (suite *NodeExecServiceTestSuite) TestExecutorDurationIsKept() {
	suite.http.MockExecute = func(ctx context.Context, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult {
		res := model.Success(nil)
		res.Duration = 3 * time.Second
		return res
	}

	res := suite.service.Execute(context.Background(), constants.NodeTypeHTTPRequest, nil, suite.execCtx)
	assert.Equal(suite.T(), 3*time.Second, res.Duration)
	require.Len(suite.T(), suite.http.Calls(), 1)
	assert.NotNil(suite.T(), suite.http.Calls()[0].Config)
}

func (suite *NodeExecServiceTestSuite) TestFailureIsRecordedOnSpan() {
	suite.http.MockExecute = func(ctx context.Context, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult {
		return model.Failure(constants.ErrorTypePolicy, "Requests to localhost are blocked for security reasons")
	}
	before := testutil.ToFloat64(metrics.NodeExecutionsTotal.WithLabelValues("http_request", "error", "policy_blocked"))

	res := suite.service.Execute(context.Background(), constants.NodeTypeHTTPRequest, map[string]any{}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), before+1,
		testutil.ToFloat64(metrics.NodeExecutionsTotal.WithLabelValues("http_request", "error", "policy_blocked")))

	spans := suite.recorder.Ended()
	require.Len(suite.T(), spans, 1)
	assert.Equal(suite.T(), codes.Error, spans[0].Status().Code)
	assert.Equal(suite.T(), "policy_blocked", attributeValue(spans[0].Attributes(), "conduit.node.error_type"))
}

func (suite *NodeExecServiceTestSuite) TestUnknownNodeType() {
	res := suite.service.Execute(context.Background(), "ftp_poll", map[string]any{}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Equal(suite.T(), `Unknown node type "ftp_poll"`, res.Error)
}

func (suite *NodeExecServiceTestSuite) TestUnsafeContextIsRejected() {
	for _, execCtx := range []*model.ExecutionContext{
		{Data: map[string]any{"process": map[string]any{"env": "x"}}},
		{Data: map[string]any{"order": map[string]any{"__proto__": map[string]any{}}}},
		{Input: map[string]any{"constructor": "x"}},
		{Data: map[string]any{"callback": func() {}}},
	} {
		res := suite.service.Execute(context.Background(), constants.NodeTypeScript, map[string]any{}, execCtx)
		assert.False(suite.T(), res.IsSuccess())
		assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	}
	assert.Empty(suite.T(), suite.script.Calls())
}

func (suite *NodeExecServiceTestSuite) TestPanicIsRecovered() {
	suite.script.MockExecute = func(ctx context.Context, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult {
		panic("boom")
	}

	res := suite.service.Execute(context.Background(), constants.NodeTypeScript, map[string]any{}, suite.execCtx)

	assert.False(suite.T(), res.IsSuccess())
	assert.Equal(suite.T(), constants.ErrorTypeInternal, res.ErrorType)
	assert.NotContains(suite.T(), res.Error, "boom")
}

func (suite *NodeExecServiceTestSuite) TestNilResultBecomesInternalFailure() {
	suite.script.MockExecute = func(ctx context.Context, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult {
		return nil
	}

	res := suite.service.Execute(context.Background(), constants.NodeTypeScript, map[string]any{}, nil)
	assert.Equal(suite.T(), constants.ErrorTypeInternal, res.ErrorType)
}

func (suite *NodeExecServiceTestSuite) TestValidateRequest() {
	assert.Equal(suite.T(), constants.ErrorMissingNodeType.Code,
		suite.service.ValidateRequest(&model.NodeRequest{}).Code)

	svcErr := suite.service.ValidateRequest(&model.NodeRequest{NodeType: "ftp_poll"})
	require.NotNil(suite.T(), svcErr)
	assert.Equal(suite.T(), constants.ErrorUnknownNodeType.Code, svcErr.Code)

	svcErr = suite.service.ValidateRequest(&model.NodeRequest{
		NodeType: constants.NodeTypeScript,
		Context:  model.ExecutionContext{Data: map[string]any{"require": "fs"}},
	})
	require.NotNil(suite.T(), svcErr)
	assert.Equal(suite.T(), constants.ErrorInvalidExecutionContext.Code, svcErr.Code)

	assert.Nil(suite.T(), suite.service.ValidateRequest(&model.NodeRequest{NodeType: constants.NodeTypeScript}))
}
