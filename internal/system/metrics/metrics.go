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

// Package metrics defines the Prometheus collectors exported by the node execution core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_node_executions_total",
			Help: "Total number of node executions by node type and outcome",
		},
		[]string{"node_type", "status", "error_type"},
	)

	NodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conduit_node_execution_duration_seconds",
			Help:    "Duration of node executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	URLGuardRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_url_guard_rejections_total",
			Help: "Total number of outbound URLs rejected by the URL guard",
		},
		[]string{"reason"},
	)

	URLGuardExceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_url_guard_development_exceptions_total",
			Help: "Total number of internal targets allowed because of non-production mode",
		},
		[]string{"range"},
	)

	SQLRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_sql_rejections_total",
			Help: "Total number of SQL statements or identifiers rejected by validation",
		},
		[]string{"reason"},
	)

	SandboxExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_sandbox_executions_total",
			Help: "Total number of sandboxed script executions by final state",
		},
		[]string{"state"},
	)

	SandboxActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conduit_sandbox_active",
			Help: "Number of sandboxes currently executing",
		},
	)
)

func RecordNodeExecution(nodeType, status, errorType string, seconds float64) {
	NodeExecutionsTotal.WithLabelValues(nodeType, status, errorType).Inc()
	NodeExecutionDuration.WithLabelValues(nodeType).Observe(seconds)
}

func RecordURLRejection(reason string) {
	URLGuardRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordURLException(ipRange string) {
	URLGuardExceptionsTotal.WithLabelValues(ipRange).Inc()
}

func RecordSQLRejection(reason string) {
	SQLRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordSandboxExecution(state string) {
	SandboxExecutionsTotal.WithLabelValues(state).Inc()
}

func SetSandboxActive(n int64) {
	SandboxActive.Set(float64(n))
}
