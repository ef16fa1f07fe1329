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

package managers

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/flow/nodeexec"
	"github.com/asgardeo/conduit/internal/services"
	"github.com/asgardeo/conduit/internal/system/healthcheck/service"
)

// ServiceManagerInterface defines the interface for managing services.
type ServiceManagerInterface interface {
	RegisterServices() error
}

// ServiceManager implements the ServiceManagerInterface and is responsible for registering services.
type ServiceManager struct {
	mux            *http.ServeMux
	executors      []model.NodeExecutorInterface
	healthChecks   []service.Check
	tracerProvider trace.TracerProvider
}

// NewServiceManager creates a new instance of ServiceManager.
func NewServiceManager(mux *http.ServeMux, executors []model.NodeExecutorInterface,
	healthChecks []service.Check, tp trace.TracerProvider) ServiceManagerInterface {
	return &ServiceManager{
		mux:            mux,
		executors:      executors,
		healthChecks:   healthChecks,
		tracerProvider: tp,
	}
}

// RegisterServices registers all the services with the provided HTTP multiplexer.
func (sm *ServiceManager) RegisterServices() error {
	if len(sm.executors) == 0 {
		return errors.New("no node executors to register")
	}

	// Register the node execution service.
	nodeexec.Initialize(sm.mux, sm.tracerProvider, sm.executors...)

	// Register the health service.
	services.NewHealthCheckService(sm.mux, service.NewHealthCheckService(sm.healthChecks...))

	// Register the metrics service.
	services.NewMetricsService(sm.mux)

	return nil
}
