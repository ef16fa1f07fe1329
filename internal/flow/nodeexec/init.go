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
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/asgardeo/conduit/internal/flow/model"
)

// Initialize creates the node execution service and registers its routes.
func Initialize(mux *http.ServeMux, tp trace.TracerProvider,
	executors ...model.NodeExecutorInterface) NodeExecServiceInterface {
	service := NewNodeExecService(tp, executors...)
	handler := newNodeExecHandler(service)
	registerRoutes(mux, handler)
	return service
}

// registerRoutes registers the routes for node execution.
func registerRoutes(mux *http.ServeMux, handler *nodeExecHandler) {
	mux.HandleFunc("POST /flow/nodes/execute", handler.HandleExecuteRequest)
	mux.HandleFunc("GET /flow/nodes", handler.HandleNodeTypesRequest)
}
