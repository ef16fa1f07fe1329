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
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/database/client"
	dbmodel "github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/database/provider"
	"github.com/asgardeo/conduit/tests/mocks/databasemock"
)

type SQLAdminExecutorTestSuite struct {
	suite.Suite
	provider *databasemock.MockDBProvider
	client   *databasemock.MockDBClient
	executor *SQLAdminExecutor
	execCtx  *model.ExecutionContext
}

func TestSQLAdminExecutorSuite(t *testing.T) {
	suite.Run(t, new(SQLAdminExecutorTestSuite))
}

func (suite *SQLAdminExecutorTestSuite) SetupTest() {
	suite.client = &databasemock.MockDBClient{DialectName: dbmodel.DialectSQLServer}
	suite.provider = &databasemock.MockDBProvider{Client: suite.client}
	suite.executor = NewSQLAdminExecutor(suite.provider, urlguard.NewGuard(urlguard.Options{}),
		config.DefaultConfig().SQL)
	suite.execCtx = &model.ExecutionContext{
		RunID:  "run-1",
		StepID: "provision",
		Data:   map[string]any{"tenant": map[string]any{"db": "sales_2024"}},
		Input:  map[string]any{"orderId": "A-1' OR '1'='1"},
	}
}

func connection(dialect string) map[string]any {
	return map[string]any{
		"type":     dialect,
		"host":     "db.example.com",
		"username": "admin",
		"password": "admin-secret",
	}
}

func (suite *SQLAdminExecutorTestSuite) run(cfg map[string]any) *model.NodeResult {
	return suite.executor.Execute(context.Background(), cfg, suite.execCtx)
}

func (suite *SQLAdminExecutorTestSuite) TestCreateDatabase() {
	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "create_database",
		"options":    map[string]any{"databaseName": "sales_2024"},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	require.Len(suite.T(), suite.client.ExecuteCalls, 1)
	assert.Equal(suite.T(), "CREATE DATABASE [sales_2024]", suite.client.ExecuteCalls[0].Query.Query)
	assert.Equal(suite.T(), map[string]any{"database": "sales_2024", "changed": true}, res.Data)
	assert.Equal(suite.T(), ActionCreateDatabase, res.Fields["action"])
	assert.Equal(suite.T(), 1, suite.client.CloseCalls)

	require.Len(suite.T(), suite.provider.OpenCalls, 1)
	assert.Equal(suite.T(), "db.example.com", suite.provider.OpenCalls[0].Host)
	assert.Equal(suite.T(), "admin-secret", suite.provider.OpenCalls[0].Password)
}

func (suite *SQLAdminExecutorTestSuite) TestCreateDatabaseIfNotExists() {
	suite.client.DialectName = dbmodel.DialectPostgres
	suite.client.MockQuery = func(ctx context.Context, query dbmodel.DBQuery, args ...any) ([]map[string]any, error) {
		return []map[string]any{{"present": int64(1)}}, nil
	}

	res := suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "create_database",
		"options":    map[string]any{"databaseName": "sales_2024", "ifNotExists": true},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), map[string]any{"database": "sales_2024", "changed": false}, res.Data)
	require.Len(suite.T(), suite.client.QueryCalls, 1)
	assert.Equal(suite.T(), QueryDatabaseExists.ID, suite.client.QueryCalls[0].Query.ID)
	assert.Equal(suite.T(), []any{"sales_2024"}, suite.client.QueryCalls[0].Args)
	assert.Empty(suite.T(), suite.client.ExecuteCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestDropDatabasePostgres() {
	suite.client.DialectName = dbmodel.DialectPostgres
	res := suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "drop_database",
		"options":    map[string]any{"databaseName": "Sales", "ifExists": true},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), `DROP DATABASE IF EXISTS "Sales"`, suite.client.ExecuteCalls[0].Query.Query)
}

func (suite *SQLAdminExecutorTestSuite) TestInvalidIdentifiersNeverOpenAConnection() {
	for _, name := range []string{"sales; DROP DATABASE master", "sales--", "select", "a.b", ""} {
		res := suite.run(map[string]any{
			"connection": connection("sqlserver"),
			"action":     "create_database",
			"options":    map[string]any{"databaseName": name},
		})
		assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType, name)
	}
	assert.Empty(suite.T(), suite.provider.OpenCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestCreateLoginSQLServerBindsSecrets() {
	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "create_login",
		"options":    map[string]any{"loginName": "app_user", "password": "S3cret']; DROP LOGIN sa;--"},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	require.Len(suite.T(), suite.client.ExecuteCalls, 1)
	call := suite.client.ExecuteCalls[0]
	assert.Equal(suite.T(), QueryCreateLogin.ID, call.Query.ID)
	assert.NotContains(suite.T(), call.Query.Query, "S3cret")
	assert.NotContains(suite.T(), call.Query.Query, "app_user")
	assert.Equal(suite.T(), []any{sql.Named("login", "app_user"),
		sql.Named("password", "S3cret']; DROP LOGIN sa;--")}, call.Args)
}

func (suite *SQLAdminExecutorTestSuite) TestCreateLoginPostgresRendersServerSide() {
	suite.client.DialectName = dbmodel.DialectPostgres
	suite.client.MockQuery = func(ctx context.Context, query dbmodel.DBQuery, args ...any) ([]map[string]any, error) {
		return []map[string]any{{"statement": "CREATE ROLE app_user WITH LOGIN PASSWORD 'pw'"}}, nil
	}

	res := suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "create_login",
		"options":    map[string]any{"loginName": "app_user", "password": "pw"},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	require.Len(suite.T(), suite.client.QueryCalls, 1)
	assert.Equal(suite.T(), []any{"app_user", "pw"}, suite.client.QueryCalls[0].Args)
	require.Len(suite.T(), suite.client.ExecuteCalls, 1)
	assert.Equal(suite.T(), "CREATE ROLE app_user WITH LOGIN PASSWORD 'pw'", suite.client.ExecuteCalls[0].Query.Query)
}

func (suite *SQLAdminExecutorTestSuite) TestCreateLoginRequiresPassword() {
	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "create_login",
		"options":    map[string]any{"loginName": "app_user"},
	})
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Empty(suite.T(), suite.provider.OpenCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestDropLoginIfExistsSQLServer() {
	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "drop_login",
		"options":    map[string]any{"loginName": "app_user", "ifExists": true},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), map[string]any{"login": "app_user", "changed": false}, res.Data)
	assert.Empty(suite.T(), suite.client.ExecuteCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestSetRecoveryModel() {
	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "set_recovery_model",
		"options":    map[string]any{"databaseName": "{{tenant.db}}", "recoveryModel": "SIMPLE"},
	})
	// Identifiers are never interpolated.
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)

	res = suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "set_recovery_model",
		"options":    map[string]any{"databaseName": "sales_2024", "recoveryModel": "SIMPLE"},
	})
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), "ALTER DATABASE [sales_2024] SET RECOVERY SIMPLE", suite.client.ExecuteCalls[0].Query.Query)

	res = suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "set_recovery_model",
		"options":    map[string]any{"databaseName": "sales_2024", "recoveryModel": "SIMPLE; DROP"},
	})
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)

	res = suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "set_recovery_model",
		"options":    map[string]any{"databaseName": "sales_2024", "recoveryModel": "FULL"},
	})
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Contains(suite.T(), res.Error, "not supported for postgres targets")
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryBindsPlaceholders() {
	suite.client.MockQuery = func(ctx context.Context, query dbmodel.DBQuery, args ...any) ([]map[string]any, error) {
		return []map[string]any{{"id": "A-1", "total": int64(40)}}, nil
	}

	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "execute_query",
		"options":    map[string]any{"query": "SELECT id, total FROM orders WHERE id = {{input.orderId}}"},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	require.Len(suite.T(), suite.client.QueryCalls, 1)
	call := suite.client.QueryCalls[0]
	assert.Equal(suite.T(), "SELECT id, total FROM orders WHERE id = @p0", call.Query.Query)
	assert.Equal(suite.T(), []any{sql.Named("p0", "A-1' OR '1'='1")}, call.Args)
	assert.Equal(suite.T(), 1, res.Fields["rowCount"])
	assert.Equal(suite.T(), []string{"SELECT"}, res.Fields["operations"])
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryPostgresParameters() {
	suite.client.DialectName = dbmodel.DialectPostgres
	res := suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "execute_query",
		"options": map[string]any{
			"query":      "SELECT * FROM orders WHERE id = {{input.orderId}} AND region = @region",
			"parameters": map[string]any{"region": "eu"},
		},
	})

	require.True(suite.T(), res.IsSuccess(), res.Error)
	call := suite.client.QueryCalls[0]
	assert.Equal(suite.T(), "SELECT * FROM orders WHERE id = $1 AND region = $2", call.Query.Query)
	assert.Equal(suite.T(), []any{"A-1' OR '1'='1", "eu"}, call.Args)
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryRejections() {
	testCases := []map[string]any{
		{"query": "DELETE FROM orders"},
		{"query": "SELECT * FROM orders; DROP TABLE orders", "allowedOperations": []any{"SELECT", "DROP"}},
		{"query": "SELECT * FROM orders WHERE name = '{{input.orderId}}'"},
		{"query": "SELECT * FROM orders WHERE id = {{input.orderId}}", "parameters": map[string]any{"p0": "clash"}},
		{"query": "  "},
	}
	for _, options := range testCases {
		res := suite.run(map[string]any{
			"connection": connection("sqlserver"),
			"action":     "execute_query",
			"options":    options,
		})
		assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType, options["query"])
	}
	assert.Empty(suite.T(), suite.provider.OpenCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestConnectionFailureIsSanitized() {
	suite.provider.MockOpen = func(ctx context.Context, conn provider.ConnectionConfig) (client.DBClientInterface, error) {
		return nil, errors.New("failed to ping database: pq: password authentication failed for user \"admin\"")
	}

	res := suite.run(map[string]any{
		"connection": connection("postgres"),
		"action":     "drop_database",
		"options":    map[string]any{"databaseName": "sales"},
	})
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), "Database authentication failed", res.Error)
}

func (suite *SQLAdminExecutorTestSuite) TestDriverFailureClosesConnection() {
	suite.client.MockExecute = func(ctx context.Context, query dbmodel.DBQuery, args ...any) (int64, error) {
		return 0, errors.New("mssql: Database 'sales' already exists at host db.example.com")
	}

	res := suite.run(map[string]any{
		"connection": connection("sqlserver"),
		"action":     "create_database",
		"options":    map[string]any{"databaseName": "sales"},
	})
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), "SQL execution failed", res.Error)
	assert.NotContains(suite.T(), res.Error, "db.example.com")
	assert.Equal(suite.T(), 1, suite.client.CloseCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestTargetPolicy() {
	for _, cfg := range []map[string]any{
		{"type": "sqlserver", "host": "10.0.0.5"},
		{"type": "postgres", "host": "169.254.169.254"},
		{"type": "sqlite", "path": "/var/lib/conduit/data.db"},
	} {
		res := suite.run(map[string]any{
			"connection": cfg,
			"action":     "execute_query",
			"options":    map[string]any{"query": "SELECT 1"},
		})
		assert.Equal(suite.T(), constants.ErrorTypePolicy, res.ErrorType, cfg["host"])
	}
	assert.Empty(suite.T(), suite.provider.OpenCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestInvalidConfig() {
	res := suite.run(map[string]any{"connection": connection("oracle"), "action": "create_database"})
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)

	res = suite.run(map[string]any{"connection": connection("sqlserver"), "action": "shutdown"})
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryAgainstSQLite() {
	executor := NewSQLAdminExecutor(provider.NewDBProvider(), urlguard.NewGuard(urlguard.Options{AllowInternal: true}),
		config.DefaultConfig().SQL)
	conn := map[string]any{"type": "sqlite", "path": filepath.Join(suite.T().TempDir(), "tenant.db")}
	execCtx := &model.ExecutionContext{RunID: "run-2", StepID: "load",
		Input: map[string]any{"id": "A-1", "total": 64}}

	steps := []map[string]any{
		{"query": "CREATE TABLE orders (id TEXT, total INTEGER)", "allowedOperations": []any{"CREATE"},
			"isAdminQuery": true},
		{"query": "INSERT INTO orders (id, total) VALUES ({{input.id}}, {{input.total}})",
			"allowedOperations": []any{"INSERT"}},
	}
	for _, options := range steps {
		res := executor.Execute(context.Background(), map[string]any{
			"connection": conn, "action": "execute_query", "options": options,
		}, execCtx)
		require.True(suite.T(), res.IsSuccess(), res.Error)
	}

	res := executor.Execute(context.Background(), map[string]any{
		"connection": conn,
		"action":     "execute_query",
		"options":    map[string]any{"query": "SELECT id, total FROM orders WHERE id = {{input.id}}"},
	}, execCtx)
	require.True(suite.T(), res.IsSuccess(), res.Error)
	rows := res.Data.([]map[string]any)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "A-1", rows[0]["id"])
	assert.EqualValues(suite.T(), 64, rows[0]["total"])
}

func (suite *SQLAdminExecutorTestSuite) transactionalInsert() map[string]any {
	return map[string]any{
		"connection": connection("sqlserver"),
		"action":     "execute_query",
		"options": map[string]any{
			"query":             "INSERT INTO orders (id) VALUES ({{input.orderId}}); UPDATE stats SET total = total + 1",
			"allowedOperations": []any{"INSERT", "UPDATE"},
			"transaction":       true,
		},
	}
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryTransactionCommits() {
	tx := &databasemock.MockTx{}
	suite.client.MockBeginTx = func(ctx context.Context) (dbmodel.TxInterface, error) { return tx, nil }

	res := suite.run(suite.transactionalInsert())

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), 1, suite.client.BeginTxCalls)
	assert.Empty(suite.T(), suite.client.ExecuteCalls)
	require.Len(suite.T(), tx.ExecQueries, 1)
	assert.Equal(suite.T(), "INSERT INTO orders (id) VALUES (@p0); UPDATE stats SET total = total + 1",
		tx.ExecQueries[0])
	assert.Equal(suite.T(), 1, tx.CommitCalls)
	assert.Equal(suite.T(), 0, tx.RollbackCalls)
	assert.Equal(suite.T(), []string{"INSERT", "UPDATE"}, res.Fields["operations"])
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryTransactionRollsBack() {
	tx := &databasemock.MockTx{
		MockExecContext: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			return nil, errors.New("mssql: Invalid object name 'stats'")
		},
	}
	suite.client.MockBeginTx = func(ctx context.Context) (dbmodel.TxInterface, error) { return tx, nil }

	res := suite.run(suite.transactionalInsert())

	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), 0, tx.CommitCalls)
	assert.Equal(suite.T(), 1, tx.RollbackCalls)
	assert.Equal(suite.T(), 1, suite.client.CloseCalls)
}

func (suite *SQLAdminExecutorTestSuite) TestExecuteQueryWithoutTransactionUsesConnection() {
	cfg := suite.transactionalInsert()
	cfg["options"].(map[string]any)["transaction"] = false

	res := suite.run(cfg)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), 0, suite.client.BeginTxCalls)
	assert.Len(suite.T(), suite.client.ExecuteCalls, 1)
}

func (suite *SQLAdminExecutorTestSuite) TestTransactionalBatchAgainstSQLite() {
	executor := NewSQLAdminExecutor(provider.NewDBProvider(), urlguard.NewGuard(urlguard.Options{AllowInternal: true}),
		config.DefaultConfig().SQL)
	conn := map[string]any{"type": "sqlite", "path": filepath.Join(suite.T().TempDir(), "batch.db")}
	execCtx := &model.ExecutionContext{RunID: "run-3", StepID: "load", Input: map[string]any{"id": "B-7"}}
	exec := func(options map[string]any) *model.NodeResult {
		return executor.Execute(context.Background(), map[string]any{
			"connection": conn, "action": "execute_query", "options": options,
		}, execCtx)
	}

	res := exec(map[string]any{"query": "CREATE TABLE orders (id TEXT)", "allowedOperations": []any{"CREATE"},
		"isAdminQuery": true})
	require.True(suite.T(), res.IsSuccess(), res.Error)

	res = exec(map[string]any{
		"query":             "INSERT INTO orders (id) VALUES ({{input.id}}); INSERT INTO audit (id) VALUES ({{input.id}})",
		"allowedOperations": []any{"INSERT"},
		"transaction":       true,
	})
	require.False(suite.T(), res.IsSuccess())

	res = exec(map[string]any{"query": "SELECT id FROM orders"})
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Empty(suite.T(), res.Data)

	res = exec(map[string]any{"query": "CREATE TABLE audit (id TEXT)", "allowedOperations": []any{"CREATE"},
		"isAdminQuery": true})
	require.True(suite.T(), res.IsSuccess(), res.Error)

	res = exec(map[string]any{
		"query":             "INSERT INTO orders (id) VALUES ({{input.id}}); INSERT INTO audit (id) VALUES ({{input.id}})",
		"allowedOperations": []any{"INSERT"},
		"transaction":       true,
	})
	require.True(suite.T(), res.IsSuccess(), res.Error)

	res = exec(map[string]any{"query": "SELECT id FROM audit"})
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), []map[string]any{{"id": "B-7"}}, res.Data)
}
