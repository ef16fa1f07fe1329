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

// Package nodeexec dispatches node executions to the registered executors and exposes them over HTTP.
package nodeexec

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/system/error/serviceerror"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

const (
	loggerComponentName = "NodeExecService"
	tracerName          = "github.com/asgardeo/conduit/internal/flow/nodeexec"
)

// NodeExecServiceInterface defines the node execution operations.
type NodeExecServiceInterface interface {
	Execute(ctx context.Context, nodeType constants.NodeType, config map[string]any,
		execCtx *model.ExecutionContext) *model.NodeResult
	ValidateRequest(req *model.NodeRequest) *serviceerror.ServiceError
	GetNodeTypes() []constants.NodeType
}

// nodeExecService is the default implementation of NodeExecServiceInterface.
type nodeExecService struct {
	executors map[constants.NodeType]model.NodeExecutorInterface
	tracer    trace.Tracer
}

var _ NodeExecServiceInterface = (*nodeExecService)(nil)

// NewNodeExecService creates a service dispatching to the given executors. A nil tracer provider
// selects the global one.
func NewNodeExecService(tp trace.TracerProvider, executors ...model.NodeExecutorInterface) NodeExecServiceInterface {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	registry := make(map[constants.NodeType]model.NodeExecutorInterface, len(executors))
	for _, executor := range executors {
		registry[executor.GetType()] = executor
	}
	return &nodeExecService{
		executors: registry,
		tracer:    tp.Tracer(tracerName),
	}
}

// GetNodeTypes returns the registered node types in sorted order.
func (s *nodeExecService) GetNodeTypes() []constants.NodeType {
	types := make([]constants.NodeType, 0, len(s.executors))
	for nodeType := range s.executors {
		types = append(types, nodeType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidateRequest checks the parts of a request that are rejected before dispatch.
func (s *nodeExecService) ValidateRequest(req *model.NodeRequest) *serviceerror.ServiceError {
	if req.NodeType == "" {
		return &constants.ErrorMissingNodeType
	}
	if _, ok := s.executors[req.NodeType]; !ok {
		return serviceerror.CustomServiceError(constants.ErrorUnknownNodeType,
			fmt.Sprintf("No executor is registered for the node type %q", req.NodeType))
	}
	if err := validateExecutionContext(&req.Context); err != nil {
		return serviceerror.CustomServiceError(constants.ErrorInvalidExecutionContext, err.Error())
	}
	return nil
}

// Execute runs a single node and returns its result. It never panics and every failure is
// reported in the result.
func (s *nodeExecService) Execute(ctx context.Context, nodeType constants.NodeType, config map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	start := time.Now()
	logger := common.NodeLogger(loggerComponentName, nodeType, execCtx)

	attrs := []attribute.KeyValue{attribute.String("conduit.node.type", string(nodeType))}
	if execCtx != nil {
		attrs = append(attrs,
			attribute.String("conduit.run.id", execCtx.RunID),
			attribute.String("conduit.step.id", execCtx.StepID))
	}
	ctx, span := s.tracer.Start(ctx, "node.execute", trace.WithAttributes(attrs...))
	defer span.End()

	result := s.dispatch(ctx, nodeType, config, execCtx, logger)
	elapsed := time.Since(start)
	if result.Duration == 0 {
		result.Duration = elapsed
	}

	metrics.RecordNodeExecution(string(nodeType), string(result.Status), string(result.ErrorType), elapsed.Seconds())
	span.SetAttributes(attribute.String("conduit.node.status", string(result.Status)))
	if result.IsSuccess() {
		span.SetStatus(codes.Ok, "")
		logger.Debug("Node execution completed", log.Duration("duration", elapsed))
	} else {
		span.SetAttributes(attribute.String("conduit.node.error_type", string(result.ErrorType)))
		span.SetStatus(codes.Error, result.Error)
		logger.Info("Node execution failed", log.String("errorType", string(result.ErrorType)),
			log.String("error", result.Error), log.Duration("duration", elapsed))
	}
	return result
}

func (s *nodeExecService) dispatch(ctx context.Context, nodeType constants.NodeType, config map[string]any,
	execCtx *model.ExecutionContext, logger *log.Logger) (result *model.NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in node executor", log.Any("panic", r),
				log.String("stack", string(debug.Stack())))
			result = model.Failure(constants.ErrorTypeInternal, "Internal error during node execution")
		}
	}()

	executor, ok := s.executors[nodeType]
	if !ok {
		return model.Failure(constants.ErrorTypeValidation, fmt.Sprintf("Unknown node type %q", nodeType))
	}
	if err := validateExecutionContext(execCtx); err != nil {
		logger.Warn("Rejected unsafe execution context", log.Error(err))
		return common.FailureFromError(err, "Invalid execution context")
	}
	if config == nil {
		config = map[string]any{}
	}

	result = executor.Execute(ctx, config, execCtx)
	if result == nil {
		return model.Failure(constants.ErrorTypeInternal, "Node executor returned no result")
	}
	return result
}

// validateExecutionContext applies the context rules to the workflow data and the previous output.
func validateExecutionContext(execCtx *model.ExecutionContext) error {
	if execCtx == nil {
		return nil
	}
	if err := interpolate.ValidateContext(execCtx.Data); err != nil {
		return err
	}
	if execCtx.Input != nil {
		return interpolate.ValidateContext(map[string]any{"input": execCtx.Input})
	}
	return nil
}
