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

// Package client provides database client implementations for executing queries and managing transactions.
package client

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/log"
)

// DBClientInterface defines the interface for database operations.
type DBClientInterface interface {
	// Query executes a sql query that returns rows, typically a SELECT, and returns the result as a slice of maps.
	Query(ctx context.Context, query model.DBQuery, args ...any) ([]map[string]any, error)
	// Execute executes a sql query without returning data in any rows, and returns number of rows affected.
	Execute(ctx context.Context, query model.DBQuery, args ...any) (int64, error)
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (model.TxInterface, error)
	// Dialect returns the SQL dialect of the underlying connection.
	Dialect() string
	// Close closes the database connection.
	Close() error
}

// ErrNestedTransaction is returned by BeginTx on a client that is already bound to a transaction.
var ErrNestedTransaction = errors.New("nested transactions are not supported")

// statementRunner is the statement surface shared by connections and transactions.
type statementRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DBClient is the implementation of DBClientInterface.
type DBClient struct {
	db      model.DBInterface
	runner  statementRunner
	dialect string
}

// NewDBClient creates a new instance of DBClient with the provided database connection.
func NewDBClient(db model.DBInterface, dialect string) DBClientInterface {
	return &DBClient{
		db:      db,
		runner:  db,
		dialect: dialect,
	}
}

// NewTxClient returns a client whose statements run inside tx. The owner of tx commits or rolls
// it back; Close on the returned client is a no-op.
func NewTxClient(tx model.TxInterface, dialect string) DBClientInterface {
	return &DBClient{
		runner:  tx,
		dialect: dialect,
	}
}

// RunInTx runs fn against a client bound to a new transaction on dbClient. The transaction is
// committed when fn succeeds and rolled back otherwise.
func RunInTx(ctx context.Context, dbClient DBClientInterface, fn func(tx DBClientInterface) error) error {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "DBClient"))

	tx, err := dbClient.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(NewTxClient(tx, dbClient.Dialect())); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error("Failed to roll back transaction", log.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// Query executes a sql query that returns rows, typically a SELECT, and returns the result as a slice of maps.
func (client *DBClient) Query(ctx context.Context, query model.DBQuery, args ...any) ([]map[string]any, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "DBClient"))
	logger.Debug("Executing query", log.String("queryID", query.GetID()))

	sqlQuery := query.GetQuery(client.dialect)
	rows, err := client.runner.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.Error("Error closing rows", log.Error(closeErr))
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		row := make([]any, len(columns))
		rowPointers := make([]any, len(columns))
		for i := range row {
			rowPointers[i] = &row[i]
		}

		if err := rows.Scan(rowPointers...); err != nil {
			return nil, err
		}

		result := map[string]any{}
		for i, col := range columns {
			// Normalize column names to lowercase for consistency.
			result[strings.ToLower(col)] = normalizeValue(row[i])
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Execute executes a sql query without returning data in any rows, and returns number of rows affected.
func (client *DBClient) Execute(ctx context.Context, query model.DBQuery, args ...any) (int64, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "DBClient"))
	logger.Debug("Executing statement", log.String("queryID", query.GetID()))

	sqlQuery := query.GetQuery(client.dialect)
	res, err := client.runner.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		// DDL on some drivers does not report affected rows.
		return 0, nil
	}

	return rowsAffected, nil
}

// BeginTx starts a new database transaction.
func (client *DBClient) BeginTx(ctx context.Context) (model.TxInterface, error) {
	if client.db == nil {
		return nil, ErrNestedTransaction
	}
	tx, err := client.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return model.NewTx(tx), nil
}

// Dialect returns the SQL dialect of the underlying connection.
func (client *DBClient) Dialect() string {
	return client.dialect
}

// Close closes the database connection.
func (client *DBClient) Close() error {
	if client.db == nil {
		return nil
	}
	return client.db.Close()
}

// normalizeValue converts driver byte slices into strings so rows serialize cleanly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
