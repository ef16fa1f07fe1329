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

package sqladmin

import (
	"fmt"

	"github.com/asgardeo/conduit/internal/security/sqlguard"
	dbmodel "github.com/asgardeo/conduit/internal/system/database/model"
)

// QueryDatabaseExists reports whether a database with the bound name exists.
var QueryDatabaseExists = dbmodel.DBQuery{
	ID:             "SAQ-00001",
	Query:          "SELECT 1 AS present WHERE DB_ID(@name) IS NOT NULL",
	PostgresQuery:  "SELECT 1 AS present FROM pg_database WHERE datname = $1",
	SQLServerQuery: "SELECT 1 AS present WHERE DB_ID(@name) IS NOT NULL",
}

// QueryLoginExists reports whether a server login or role with the bound name exists.
var QueryLoginExists = dbmodel.DBQuery{
	ID:             "SAQ-00002",
	Query:          "SELECT 1 AS present FROM sys.server_principals WHERE name = @name",
	PostgresQuery:  "SELECT 1 AS present FROM pg_roles WHERE rolname = $1",
	SQLServerQuery: "SELECT 1 AS present FROM sys.server_principals WHERE name = @name",
}

// QueryCreateLogin creates a login with both the name and the password bound as parameters.
// On PostgreSQL the statement is rendered server-side by format() and returned for execution.
var QueryCreateLogin = dbmodel.DBQuery{
	ID: "SAQ-00003",
	Query: "DECLARE @stmt nvarchar(max) = N'CREATE LOGIN ' + QUOTENAME(@login) + " +
		"N' WITH PASSWORD = ' + QUOTENAME(@password, ''''); EXEC sp_executesql @stmt",
	PostgresQuery: "SELECT format('CREATE ROLE %I WITH LOGIN PASSWORD %L', $1::text, $2::text) AS statement",
}

func queryCreateDatabase(dialect, name string) dbmodel.DBQuery {
	return dbmodel.DBQuery{
		ID:    "SAQ-00004",
		Query: "CREATE DATABASE " + sqlguard.QuoteIdentifier(dialect, name),
	}
}

func queryDropDatabase(dialect, name string, ifExists bool) dbmodel.DBQuery {
	return dbmodel.DBQuery{
		ID:    "SAQ-00005",
		Query: "DROP DATABASE " + ifExistsClause(ifExists) + sqlguard.QuoteIdentifier(dialect, name),
	}
}

func queryDropLogin(dialect, name string, ifExists bool) dbmodel.DBQuery {
	if dialect == dbmodel.DialectPostgres {
		return dbmodel.DBQuery{
			ID:    "SAQ-00006",
			Query: "DROP ROLE " + ifExistsClause(ifExists) + sqlguard.QuoteIdentifier(dialect, name),
		}
	}
	return dbmodel.DBQuery{
		ID:    "SAQ-00006",
		Query: "DROP LOGIN " + sqlguard.QuoteIdentifier(dialect, name),
	}
}

// queryExecuteRendered wraps a statement rendered by the server itself.
func queryExecuteRendered(statement string) dbmodel.DBQuery {
	return dbmodel.DBQuery{ID: "SAQ-00007", Query: statement}
}

// querySetRecoveryModel expects model to be one of the closed set of recovery models.
func querySetRecoveryModel(dialect, name, model string) dbmodel.DBQuery {
	return dbmodel.DBQuery{
		ID:    "SAQ-00008",
		Query: fmt.Sprintf("ALTER DATABASE %s SET RECOVERY %s", sqlguard.QuoteIdentifier(dialect, name), model),
	}
}

func ifExistsClause(ifExists bool) string {
	if ifExists {
		return "IF EXISTS "
	}
	return ""
}
