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

// Package queryapi provides the executor that runs queries against a remote query API.
package queryapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/ohler55/ojg/jp"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/config"
	sysconst "github.com/asgardeo/conduit/internal/system/constants"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "QueryAPIExecutor"

// Header is a single request header.
type Header struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// Config is the query_api node configuration.
type Config struct {
	Endpoint       string         `json:"endpoint" validate:"required"`
	Query          string         `json:"query" validate:"required"`
	Parameters     map[string]any `json:"parameters"`
	Headers        []Header       `json:"headers" validate:"dive"`
	RowsPath       string         `json:"rowsPath"`
	TimeoutSeconds int            `json:"timeoutSeconds" validate:"min=1,max=300"`
}

type queryRequest struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// QueryAPIExecutor posts one query per invocation and returns the rows of the response.
type QueryAPIExecutor struct {
	guard            *urlguard.Guard
	limiter          *httpclient.TenantLimiter
	defaults         Config
	maxResponseBytes int64
}

var _ model.NodeExecutorInterface = (*QueryAPIExecutor)(nil)

// NewQueryAPIExecutor creates an executor bound to the outbound policy and limits.
func NewQueryAPIExecutor(guard *urlguard.Guard, limiter *httpclient.TenantLimiter,
	cfg config.HTTPConfig) *QueryAPIExecutor {
	return &QueryAPIExecutor{
		guard:            guard,
		limiter:          limiter,
		defaults:         Config{TimeoutSeconds: cfg.TimeoutSeconds},
		maxResponseBytes: cfg.MaxResponseBytes,
	}
}

// GetType returns the node type handled by the executor.
func (e *QueryAPIExecutor) GetType() constants.NodeType {
	return constants.NodeTypeQueryAPI
}

// Execute runs the query.
func (e *QueryAPIExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *QueryAPIExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	defaults := e.defaults
	if err := common.DecodeConfig(rawConfig, &defaults, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}
	var rowsExpr jp.Expr
	if cfg.RowsPath != "" {
		expr, err := jp.ParseString(cfg.RowsPath)
		if err != nil {
			return model.Failure(constants.ErrorTypeValidation, "Invalid node configuration: rowsPath is not a valid JSONPath")
		}
		rowsExpr = expr
	}

	root := execCtx.InterpolationContext()
	endpoint, err := interpolate.InterpolateString("endpoint", cfg.Endpoint, root, interpolate.ContextURL)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the endpoint")
	}
	validation := e.guard.Validate(endpoint)
	if !validation.IsValid {
		return model.Failure(constants.ErrorTypePolicy, validation.Error)
	}

	query, err := interpolate.InterpolateString("query", cfg.Query, root, interpolate.ContextGeneral)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the query")
	}
	var params map[string]any
	if len(cfg.Parameters) > 0 {
		resolved, err := interpolate.Interpolate(cfg.Parameters, root, interpolate.ContextGeneral)
		if err != nil {
			return common.FailureFromError(err, "Failed to resolve the query parameters")
		}
		params = resolved.(map[string]any)
	}
	body, err := json.Marshal(queryRequest{Query: query, Parameters: params})
	if err != nil {
		return model.Failure(constants.ErrorTypeValidation, "Query parameters are not serializable")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, validation.SanitizedURL, bytes.NewReader(body))
	if err != nil {
		return model.Failure(constants.ErrorTypeRequestSetup, "Failed to build the request")
	}
	for _, h := range cfg.Headers {
		value, err := interpolate.InterpolateString(h.Key, h.Value, root, interpolate.ContextAuto)
		if err != nil {
			return common.FailureFromError(err, "Failed to resolve a request header")
		}
		req.Header.Add(h.Key, value)
	}
	req.Header.Set(sysconst.ContentTypeHeaderName, sysconst.ContentTypeJSON)
	req.Header.Set("Accept", sysconst.ContentTypeJSON)

	client := common.NewOutboundClient(e.guard, e.limiter, execCtx, common.OutboundOptions{Timeout: timeout})
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return common.FailureFromTransportError(err, timeout)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body", log.Error(closeErr))
		}
	}()
	raw, err := common.ReadLimited(resp.Body, e.maxResponseBytes)
	if err != nil {
		return common.FailureFromTransportError(err, timeout)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Failure(constants.ErrorTypeHTTPStatus,
			fmt.Sprintf("Query failed with status code %d", resp.StatusCode)).
			WithField("statusCode", resp.StatusCode)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.Failure(constants.ErrorTypeExecution, "Query API returned a response that is not JSON")
	}
	rows, ok := extractRows(payload, rowsExpr)
	if !ok {
		return model.Failure(constants.ErrorTypeExecution, "Query API response does not contain rows")
	}

	logger.Debug("Query completed", log.String(log.LoggerKeyHostname, validation.Hostname),
		log.Int("rows", len(rows)))
	res := model.Success(rows).WithField("rowCount", len(rows))
	res.Duration = time.Since(start)
	return res
}

// extractRows locates the row list: rowsPath when set, else a top-level array or the first of
// the rows, data and results members that is an array.
func extractRows(payload any, expr jp.Expr) ([]any, bool) {
	if expr != nil {
		matches := expr.Get(payload)
		if len(matches) == 1 {
			if rows, ok := matches[0].([]any); ok {
				return rows, true
			}
		}
		return matches, len(matches) > 0
	}
	switch v := payload.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range []string{"rows", "data", "results"} {
			if rows, ok := v[key].([]any); ok {
				return rows, true
			}
		}
	}
	return nil, false
}
