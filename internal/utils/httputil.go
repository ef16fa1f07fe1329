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

// Package utils provides HTTP helpers shared by the API handlers.
package utils

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/asgardeo/conduit/internal/system/constants"
	"github.com/asgardeo/conduit/internal/system/log"
)

// DecodeJSONBody decodes the request body into a new T, reading at most maxBytes.
func DecodeJSONBody[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (*T, error) {
	if r.Body == nil {
		return nil, errors.New("request body is empty")
	}
	var out T
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteJSON writes body as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, logger *log.Logger, statusCode int, body any) {
	w.Header().Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding response", log.Error(err))
	}
}
