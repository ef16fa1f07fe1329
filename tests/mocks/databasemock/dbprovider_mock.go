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

package databasemock

import (
	"context"

	"github.com/asgardeo/conduit/internal/system/database/client"
	"github.com/asgardeo/conduit/internal/system/database/provider"
)

// MockDBProvider is a mock implementation of the DBProviderInterface.
type MockDBProvider struct {
	// MockOpen defines the behavior for the Open method.
	MockOpen func(ctx context.Context, conn provider.ConnectionConfig) (client.DBClientInterface, error)

	// Client is returned by Open when MockOpen is not set.
	Client *MockDBClient

	// OpenCalls tracks the connection configurations passed to Open.
	OpenCalls []provider.ConnectionConfig
}

// Open mocks the Open method of the DBProviderInterface.
func (m *MockDBProvider) Open(ctx context.Context, conn provider.ConnectionConfig) (client.DBClientInterface, error) {
	m.OpenCalls = append(m.OpenCalls, conn)

	if m.MockOpen != nil {
		return m.MockOpen(ctx, conn)
	}
	if m.Client == nil {
		m.Client = &MockDBClient{DialectName: conn.Dialect}
	}
	return m.Client, nil
}
