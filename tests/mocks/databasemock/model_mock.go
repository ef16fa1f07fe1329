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
	"database/sql"
	"database/sql/driver"
)

// MockTx is a mock implementation of the TxInterface.
type MockTx struct {
	// MockCommit defines the behavior for the Commit method.
	MockCommit func() error

	// MockRollback defines the behavior for the Rollback method.
	MockRollback func() error

	// MockQueryContext defines the behavior for the QueryContext method.
	MockQueryContext func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// MockExecContext defines the behavior for the ExecContext method.
	MockExecContext func(ctx context.Context, query string, args ...any) (sql.Result, error)

	// ExecQueries tracks the statements passed to ExecContext.
	ExecQueries []string

	// CommitCalls tracks the calls to Commit.
	CommitCalls int

	// RollbackCalls tracks the calls to Rollback.
	RollbackCalls int
}

// Commit mocks the Commit method of the TxInterface.
func (m *MockTx) Commit() error {
	m.CommitCalls++
	if m.MockCommit != nil {
		return m.MockCommit()
	}
	return nil
}

// Rollback mocks the Rollback method of the TxInterface.
func (m *MockTx) Rollback() error {
	m.RollbackCalls++
	if m.MockRollback != nil {
		return m.MockRollback()
	}
	return nil
}

// QueryContext mocks the QueryContext method of the TxInterface.
func (m *MockTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m.MockQueryContext != nil {
		return m.MockQueryContext(ctx, query, args...)
	}
	return nil, sql.ErrNoRows
}

// ExecContext mocks the ExecContext method of the TxInterface.
func (m *MockTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.ExecQueries = append(m.ExecQueries, query)
	if m.MockExecContext != nil {
		return m.MockExecContext(ctx, query, args...)
	}
	return driver.RowsAffected(0), nil
}
