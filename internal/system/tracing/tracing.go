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

// Package tracing configures the OpenTelemetry tracer provider of the server.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "Tracing"

// NewTracerProvider creates a tracer provider that samples at the configured ratio and writes
// ended spans to the debug log. It returns nil when tracing is disabled.
func NewTracerProvider(cfg config.TracingConfig) *sdktrace.TracerProvider {
	if !cfg.Enabled {
		return nil
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(newLogExporter()),
	)
}

// Install registers tp as the global tracer provider and returns a function that flushes and
// stops it. A nil provider leaves the global no-op provider in place.
func Install(tp *sdktrace.TracerProvider) func(context.Context) error {
	if tp == nil {
		return func(context.Context) error { return nil }
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// logExporter writes spans to the component logger.
type logExporter struct {
	logger *log.Logger
}

var _ sdktrace.SpanExporter = (*logExporter)(nil)

func newLogExporter() *logExporter {
	return &logExporter{
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
}

// ExportSpans logs each span with its identifiers, duration, status and attributes.
func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if !e.logger.IsDebugEnabled() {
		return nil
	}
	for _, span := range spans {
		fields := []log.Field{
			log.String("span", span.Name()),
			log.String("traceId", span.SpanContext().TraceID().String()),
			log.String("spanId", span.SpanContext().SpanID().String()),
			log.Duration("duration", span.EndTime().Sub(span.StartTime())),
			log.String("statusCode", span.Status().Code.String()),
		}
		for _, kv := range span.Attributes() {
			fields = append(fields, log.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("Span ended", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *logExporter) Shutdown(ctx context.Context) error {
	return nil
}
