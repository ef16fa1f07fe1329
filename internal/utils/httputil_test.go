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

package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/system/log"
)

type HTTPUtilTestSuite struct {
	suite.Suite
}

func TestHTTPUtilSuite(t *testing.T) {
	suite.Run(t, new(HTTPUtilTestSuite))
}

type sample struct {
	Name string `json:"name"`
}

func (suite *HTTPUtilTestSuite) TestDecodeJSONBody() {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"conduit"}`))
	out, err := DecodeJSONBody[sample](httptest.NewRecorder(), req, 1024)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "conduit", out.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	_, err = DecodeJSONBody[sample](httptest.NewRecorder(), req, 1024)
	assert.Error(suite.T(), err)
}

func (suite *HTTPUtilTestSuite) TestDecodeJSONBodyLimit() {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
	_, err := DecodeJSONBody[sample](httptest.NewRecorder(), req, 16)
	assert.Error(suite.T(), err)
}

func (suite *HTTPUtilTestSuite) TestWriteJSON() {
	rec := httptest.NewRecorder()
	WriteJSON(rec, log.GetLogger(), http.StatusCreated, sample{Name: "conduit"})

	assert.Equal(suite.T(), http.StatusCreated, rec.Code)
	assert.Equal(suite.T(), "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(suite.T(), `{"name":"conduit"}`, rec.Body.String())
}
