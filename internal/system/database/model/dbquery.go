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

package model

// DBQuery represents a compiled-in database statement with an identifier and optional
// per-dialect variants.
type DBQuery struct {
	// ID is the unique identifier for the query.
	ID string `json:"id"`
	// Query is the default SQL statement.
	Query string `json:"query"`
	// PostgresQuery overrides Query for PostgreSQL targets.
	PostgresQuery string `json:"postgres_query,omitempty"`
	// SQLiteQuery overrides Query for SQLite targets.
	SQLiteQuery string `json:"sqlite_query,omitempty"`
	// SQLServerQuery overrides Query for SQL Server targets.
	SQLServerQuery string `json:"sqlserver_query,omitempty"`
}

// GetID returns the unique identifier for the query.
func (d DBQuery) GetID() string {
	return d.ID
}

// GetQuery returns the statement for the given dialect, falling back to the default statement.
func (d DBQuery) GetQuery(dialect string) string {
	var q string
	switch dialect {
	case DialectPostgres:
		q = d.PostgresQuery
	case DialectSQLite:
		q = d.SQLiteQuery
	case DialectSQLServer:
		q = d.SQLServerQuery
	}
	if q == "" {
		return d.Query
	}
	return q
}
