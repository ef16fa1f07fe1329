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

// Package llm provides the executor for LLM completion nodes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/config"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "LLMExecutor"

// ProviderOpenAI is the only supported provider. Any OpenAI-compatible endpoint can be reached
// through baseUrl.
const ProviderOpenAI = "openai"

const defaultBaseURL = "https://api.openai.com/v1"

// Config is the llm_completion node configuration.
type Config struct {
	Provider       string   `json:"provider" validate:"required,oneof=openai"`
	Model          string   `json:"model" validate:"required"`
	Prompt         string   `json:"prompt" validate:"required"`
	SystemPrompt   string   `json:"systemPrompt"`
	Temperature    *float64 `json:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens      int      `json:"maxTokens" validate:"omitempty,min=1,max=128000"`
	BaseURL        string   `json:"baseUrl"`
	APIKey         string   `json:"apiKey"`
	TimeoutSeconds int      `json:"timeoutSeconds" validate:"min=1,max=600"`
}

// LLMExecutor sends a single chat completion per invocation.
type LLMExecutor struct {
	guard    *urlguard.Guard
	limiter  *httpclient.TenantLimiter
	apiKey   string
	defaults Config
}

var _ model.NodeExecutorInterface = (*LLMExecutor)(nil)

// NewLLMExecutor creates an executor using the server-wide provider settings as defaults.
func NewLLMExecutor(guard *urlguard.Guard, limiter *httpclient.TenantLimiter, cfg config.LLMConfig,
	httpCfg config.HTTPConfig) *LLMExecutor {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &LLMExecutor{
		guard:   guard,
		limiter: limiter,
		apiKey:  cfg.APIKey,
		defaults: Config{
			Provider:       ProviderOpenAI,
			Model:          cfg.DefaultModel,
			BaseURL:        baseURL,
			TimeoutSeconds: httpCfg.TimeoutSeconds,
		},
	}
}

// GetType returns the node type handled by the executor.
func (e *LLMExecutor) GetType() constants.NodeType {
	return constants.NodeTypeLLMCompletion
}

// Execute runs the completion.
func (e *LLMExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *LLMExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	defaults := e.defaults
	if err := common.DecodeConfig(rawConfig, &defaults, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = e.apiKey
	}
	if apiKey == "" {
		return model.Failure(constants.ErrorTypeValidation, "LLM API key is not configured")
	}

	validation := e.guard.Validate(cfg.BaseURL)
	if !validation.IsValid {
		return model.Failure(constants.ErrorTypePolicy, validation.Error)
	}

	root := execCtx.InterpolationContext()
	prompt, err := interpolate.InterpolateString("prompt", cfg.Prompt, root, interpolate.ContextGeneral)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the prompt")
	}
	systemPrompt, err := interpolate.InterpolateString("systemPrompt", cfg.SystemPrompt, root,
		interpolate.ContextGeneral)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the system prompt")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(strings.TrimSuffix(validation.SanitizedURL, "/")),
		openai.WithHTTPClient(common.NewOutboundClient(e.guard, e.limiter, execCtx, common.OutboundOptions{
			Timeout: timeout,
		})),
	)
	if err != nil {
		return model.Failure(constants.ErrorTypeRequestSetup, "Failed to create the LLM client")
	}

	messages := make([]llms.MessageContent, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithModel(cfg.Model)}
	if cfg.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	resp, err := client.GenerateContent(callCtx, messages, callOpts...)
	if err != nil {
		logger.Debug("LLM completion failed", log.String(log.LoggerKeyHostname, validation.Hostname),
			log.Error(err))
		return failureFromLLMError(err, timeout)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return model.Failure(constants.ErrorTypeExecution, "LLM provider returned no choices")
	}

	choice := resp.Choices[0]
	res := model.Success(map[string]any{
		"text":         choice.Content,
		"model":        cfg.Model,
		"finishReason": choice.StopReason,
		"usage":        usage(choice.GenerationInfo),
	})
	res.Duration = time.Since(start)
	logger.Debug("LLM completion finished", log.String("model", cfg.Model), log.Duration("elapsed", res.Duration))
	return res
}

func usage(info map[string]any) map[string]any {
	out := map[string]any{}
	for key, name := range map[string]string{
		"PromptTokens":     "promptTokens",
		"CompletionTokens": "completionTokens",
		"TotalTokens":      "totalTokens",
	} {
		if v, ok := info[key]; ok {
			out[name] = v
		}
	}
	return out
}

func failureFromLLMError(err error, timeout time.Duration) *model.NodeResult {
	var policyErr *urlguard.PolicyError
	var urlErr *url.Error
	switch {
	case errors.As(err, &policyErr):
		return model.Failure(constants.ErrorTypePolicy, policyErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return model.Failure(constants.ErrorTypeNoResponse, fmt.Sprintf("No response received within %s", timeout))
	case errors.As(err, &urlErr):
		return common.FailureFromTransportError(err, timeout)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "incorrect api key"):
		return model.Failure(constants.ErrorTypeExecution, "LLM provider rejected the credentials")
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return model.Failure(constants.ErrorTypeExecution, "LLM provider rate limit exceeded")
	default:
		return model.Failure(constants.ErrorTypeExecution, "LLM completion request failed")
	}
}
