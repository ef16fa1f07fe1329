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

// Package httprequest provides the executor for guarded outbound HTTP request nodes.
package httprequest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
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

const loggerComponentName = "HTTPRequestExecutor"

// Header is a single request header.
type Header struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// Config is the http_request node configuration.
type Config struct {
	Method          string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	URL             string            `json:"url" validate:"required"`
	Headers         []Header          `json:"headers" validate:"dive"`
	Body            any               `json:"body"`
	TimeoutSeconds  int               `json:"timeoutSeconds" validate:"min=1,max=300"`
	FollowRedirects *bool             `json:"followRedirects"`
	MaxRedirects    *int              `json:"maxRedirects" validate:"omitempty,min=0,max=20"`
	Extract         map[string]string `json:"extract"`
}

// HTTPRequestExecutor sends one guarded HTTP request per invocation.
type HTTPRequestExecutor struct {
	guard            *urlguard.Guard
	limiter          *httpclient.TenantLimiter
	defaults         Config
	maxResponseBytes int64
}

var _ model.NodeExecutorInterface = (*HTTPRequestExecutor)(nil)

// NewHTTPRequestExecutor creates an executor bound to the outbound policy and limits.
func NewHTTPRequestExecutor(guard *urlguard.Guard, limiter *httpclient.TenantLimiter,
	cfg config.HTTPConfig) *HTTPRequestExecutor {
	follow := true
	maxRedirects := cfg.MaxRedirects
	return &HTTPRequestExecutor{
		guard:   guard,
		limiter: limiter,
		defaults: Config{
			Method:          http.MethodGet,
			TimeoutSeconds:  cfg.TimeoutSeconds,
			FollowRedirects: &follow,
			MaxRedirects:    &maxRedirects,
		},
		maxResponseBytes: cfg.MaxResponseBytes,
	}
}

// GetType returns the node type handled by the executor.
func (e *HTTPRequestExecutor) GetType() constants.NodeType {
	return constants.NodeTypeHTTPRequest
}

// Execute runs the request described by rawConfig.
func (e *HTTPRequestExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *HTTPRequestExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	defaults := e.defaults
	if err := common.DecodeConfig(normalizeMethod(rawConfig), &defaults, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}

	extractors, err := compileExtractors(cfg.Extract)
	if err != nil {
		return common.FailureFromError(err, "Invalid extract expression")
	}

	root := execCtx.InterpolationContext()
	target, err := interpolate.InterpolateString("url", cfg.URL, root, interpolate.ContextAuto)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the request URL")
	}
	validation := e.guard.Validate(target)
	if !validation.IsValid {
		return model.Failure(constants.ErrorTypePolicy, validation.Error)
	}

	body, contentType, err := buildBody(cfg.Body, root)
	if err != nil {
		return common.FailureFromError(err, "Failed to build the request body")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, cfg.Method, validation.SanitizedURL, body)
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
	if contentType != "" && req.Header.Get(sysconst.ContentTypeHeaderName) == "" {
		req.Header.Set(sysconst.ContentTypeHeaderName, contentType)
	}

	client := common.NewOutboundClient(e.guard, e.limiter, execCtx, common.OutboundOptions{
		Timeout:         timeout,
		FollowRedirects: *cfg.FollowRedirects,
		MaxRedirects:    *cfg.MaxRedirects,
	})

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("Outbound request failed", log.String(log.LoggerKeyHostname, validation.Hostname),
			log.Error(err))
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
	payload := decodePayload(raw, resp.Header.Get(sysconst.ContentTypeHeaderName))
	headers := flattenHeaders(resp.Header)
	elapsed := time.Since(start)

	logger.Debug("Outbound request completed", log.String(log.LoggerKeyHostname, validation.Hostname),
		log.Int("statusCode", resp.StatusCode), log.Duration("elapsed", elapsed))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := model.Failure(constants.ErrorTypeHTTPStatus,
			fmt.Sprintf("Request failed with status code %d", resp.StatusCode))
		res.Data = payload
		return res.WithField("statusCode", resp.StatusCode).WithField("headers", headers)
	}

	res := model.Success(payload).
		WithField("statusCode", resp.StatusCode).
		WithField("headers", headers).
		WithField("url", validation.SanitizedURL)
	if len(extractors) > 0 {
		res.WithField("extracted", extract(extractors, payload))
	}
	res.Duration = elapsed
	return res
}

func normalizeMethod(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	if m, ok := out["method"].(string); ok {
		out["method"] = strings.ToUpper(strings.TrimSpace(m))
	}
	return out
}

// buildBody interpolates the body and encodes it. Strings are sent as-is, anything else as JSON.
func buildBody(body any, root map[string]any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	if s, ok := body.(string); ok {
		rendered, err := interpolate.InterpolateString("body", s, root, interpolate.ContextAuto)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(rendered), "", nil
	}
	rendered, err := interpolate.Interpolate(body, root, interpolate.ContextAuto)
	if err != nil {
		return nil, "", err
	}
	encoded, err := json.Marshal(rendered)
	if err != nil {
		return nil, "", &common.ConfigError{Message: "Request body is not serializable"}
	}
	return bytes.NewReader(encoded), sysconst.ContentTypeJSON, nil
}

func decodePayload(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if strings.Contains(strings.ToLower(contentType), "json") ||
		(len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')) {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

type extractor struct {
	name string
	expr jp.Expr
}

func compileExtractors(paths map[string]string) ([]extractor, error) {
	out := make([]extractor, 0, len(paths))
	for name, path := range paths {
		expr, err := jp.ParseString(path)
		if err != nil {
			return nil, &common.ConfigError{Message: fmt.Sprintf("Invalid extract expression for %q", name)}
		}
		out = append(out, extractor{name: name, expr: expr})
	}
	return out, nil
}

// extract evaluates each expression. A single match is returned as a value, several as a list.
func extract(extractors []extractor, payload any) map[string]any {
	out := make(map[string]any, len(extractors))
	for _, x := range extractors {
		results := x.expr.Get(payload)
		switch len(results) {
		case 0:
			out[x.name] = nil
		case 1:
			out[x.name] = results[0]
		default:
			out[x.name] = results
		}
	}
	return out
}
