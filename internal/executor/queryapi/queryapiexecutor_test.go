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

package queryapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/config"
	sysconst "github.com/asgardeo/conduit/internal/system/constants"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
)

type QueryAPIExecutorTestSuite struct {
	suite.Suite
	server   *httptest.Server
	received queryRequest
	headers  http.Header
	executor *QueryAPIExecutor
	execCtx  *model.ExecutionContext
}

func TestQueryAPIExecutorSuite(t *testing.T) {
	suite.Run(t, new(QueryAPIExecutorTestSuite))
}

func (suite *QueryAPIExecutorTestSuite) SetupTest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		suite.headers = r.Header
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &suite.received)
		_, _ = w.Write([]byte(`{"rows": [{"region": "eu", "total": 40}, {"region": "us", "total": 15}]}`))
	})
	mux.HandleFunc("/nested", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"items": [{"id": 1}]}}`))
	})
	mux.HandleFunc("/array", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 1}, {"id": 2}, {"id": 3}]`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "syntax"}`))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	})
	suite.server = httptest.NewServer(mux)
	suite.received = queryRequest{}

	suite.executor = NewQueryAPIExecutor(urlguard.NewGuard(urlguard.Options{AllowInternal: true}),
		httpclient.NewTenantLimiter(100, 100), config.DefaultConfig().HTTP)
	suite.execCtx = &model.ExecutionContext{
		RunID:  "run-5",
		StepID: "report",
		Data:   map[string]any{"filters": map[string]any{"region": "eu", "since": 2024}},
	}
}

func (suite *QueryAPIExecutorTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *QueryAPIExecutorTestSuite) TestQuery() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"endpoint":   suite.server.URL + "/query",
		"query":      "sales by region since {{filters.since}}",
		"parameters": map[string]any{"region": "{{filters.region}}", "since": "{{filters.since}}"},
		"headers":    []any{map[string]any{"key": "X-Api-Key", "value": "k-1"}},
	}, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), 2, res.Fields["rowCount"])
	rows := res.Data.([]any)
	assert.Equal(suite.T(), "eu", rows[0].(map[string]any)["region"])

	assert.Equal(suite.T(), "sales by region since 2024", suite.received.Query)
	assert.Equal(suite.T(), "eu", suite.received.Parameters["region"])
	assert.EqualValues(suite.T(), 2024, suite.received.Parameters["since"])
	assert.Equal(suite.T(), "k-1", suite.headers.Get("X-Api-Key"))
	assert.Equal(suite.T(), sysconst.ContentTypeJSON, suite.headers.Get(sysconst.ContentTypeHeaderName))
	assert.Equal(suite.T(), "report", suite.headers.Get(sysconst.WorkflowStepIDHeaderName))
}

func (suite *QueryAPIExecutorTestSuite) TestRowLocation() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": suite.server.URL + "/array", "query": "q",
	}, suite.execCtx)
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), 3, res.Fields["rowCount"])

	res = suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": suite.server.URL + "/nested", "query": "q", "rowsPath": "$.result.items",
	}, suite.execCtx)
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), 1, res.Fields["rowCount"])

	res = suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": suite.server.URL + "/nested", "query": "q",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
}

func (suite *QueryAPIExecutorTestSuite) TestFailures() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": suite.server.URL + "/broken", "query": "q",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeHTTPStatus, res.ErrorType)
	assert.Equal(suite.T(), http.StatusBadRequest, res.Fields["statusCode"])

	res = suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": suite.server.URL + "/text", "query": "q",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)

	res = suite.executor.Execute(context.Background(), map[string]any{
		"endpoint": "http://[fd00:ec2::254]/query", "query": "q",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypePolicy, res.ErrorType)

	res = suite.executor.Execute(context.Background(), map[string]any{"endpoint": suite.server.URL}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
}
