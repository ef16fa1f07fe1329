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

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/system/error/apierror"
	"github.com/asgardeo/conduit/internal/system/error/serviceerror"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/utils"
)

const handlerLoggerComponentName = "NodeExecHandler"

// maxRequestBodyBytes bounds the size of a node execution request.
const maxRequestBodyBytes = 10 << 20

// nodeExecHandler is the handler for node execution requests.
type nodeExecHandler struct {
	service NodeExecServiceInterface
}

// newNodeExecHandler creates a new instance of nodeExecHandler.
func newNodeExecHandler(service NodeExecServiceInterface) *nodeExecHandler {
	return &nodeExecHandler{
		service: service,
	}
}

// HandleExecuteRequest handles a node execution request from the scheduler.
func (h *nodeExecHandler) HandleExecuteRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, handlerLoggerComponentName))

	req, err := utils.DecodeJSONBody[model.NodeRequest](w, r, maxRequestBodyBytes)
	if err != nil {
		logger.Debug("Failed to decode node execution request", log.Error(err))
		utils.WriteJSON(w, logger, http.StatusBadRequest, constants.APIErrorNodeRequestJSONDecodeError)
		return
	}

	if svcErr := h.service.ValidateRequest(req); svcErr != nil {
		h.handleError(w, logger, svcErr)
		return
	}

	accessFields := []log.Field{log.String(log.LoggerKeyNodeType, string(req.NodeType)),
		log.String(log.LoggerKeyRunID, req.Context.RunID), log.String(log.LoggerKeyStepID, req.Context.StepID)}
	if req.Context.TenantID != "" {
		accessFields = append(accessFields, log.String(log.LoggerKeyTenantID, req.Context.TenantID))
	}
	log.AddAccessFields(r.Context(), accessFields...)

	result := h.service.Execute(r.Context(), req.NodeType, req.Config, &req.Context)
	utils.WriteJSON(w, logger, http.StatusOK, result)

	logger.Debug("Node execution request completed", log.String(log.LoggerKeyNodeType, string(req.NodeType)),
		log.String(log.LoggerKeyRunID, req.Context.RunID), log.String(log.LoggerKeyStepID, req.Context.StepID),
		log.String("status", string(result.Status)))
}

// HandleNodeTypesRequest lists the registered node types.
func (h *nodeExecHandler) HandleNodeTypesRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, handlerLoggerComponentName))
	utils.WriteJSON(w, logger, http.StatusOK, model.NodeTypesResponse{NodeTypes: h.service.GetNodeTypes()})
}

func (h *nodeExecHandler) handleError(w http.ResponseWriter, logger *log.Logger,
	svcErr *serviceerror.ServiceError) {
	if svcErr.Type != serviceerror.ClientErrorType {
		logger.Error("Internal server error occurred", log.String("error", svcErr.Error),
			log.String("description", svcErr.ErrorDescription))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusBadRequest
	if svcErr.Code == constants.ErrorUnknownNodeType.Code {
		statusCode = http.StatusNotFound
	}
	utils.WriteJSON(w, logger, statusCode, apierror.ErrorResponse{
		Code:        svcErr.Code,
		Message:     svcErr.Error,
		Description: svcErr.ErrorDescription,
	})
}
