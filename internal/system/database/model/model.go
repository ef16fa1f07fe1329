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

// Package model defines the data structures and interfaces for database operations.
package model

import (
	"context"
	"database/sql"
)

const (
	// DialectPostgres identifies a PostgreSQL target.
	DialectPostgres = "postgres"
	// DialectSQLite identifies a SQLite target.
	DialectSQLite = "sqlite"
	// DialectSQLServer identifies a Microsoft SQL Server target.
	DialectSQLServer = "sqlserver"
)

// IsSupportedDialect reports whether the given dialect can be opened by the provider.
func IsSupportedDialect(dialect string) bool {
	switch dialect {
	case DialectPostgres, DialectSQLite, DialectSQLServer:
		return true
	default:
		return false
	}
}

// DBInterface defines the wrapper interface for database operations.
type DBInterface interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// DB is the implementation of DBInterface for managing database connections.
type DB struct {
	internal *sql.DB
}

// NewDB creates a new instance of DB with the provided sql.DB.
func NewDB(db *sql.DB) DBInterface {
	return &DB{
		internal: db,
	}
}

// QueryContext executes a query that returns rows, typically a SELECT, and returns the result as *sql.Rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.internal.QueryContext(ctx, query, args...)
}

// ExecContext executes a query without returning data in any rows, and returns sql.Result.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.internal.ExecContext(ctx, query, args...)
}

// BeginTx starts a new database transaction and returns *sql.Tx.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.internal.BeginTx(ctx, nil)
}

// PingContext verifies the connection to the database is still alive.
func (d *DB) PingContext(ctx context.Context) error {
	return d.internal.PingContext(ctx)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.internal.Close()
}

// TxInterface defines the wrapper interface for transaction management.
type TxInterface interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error
	// QueryContext executes a query that returns rows within the transaction.
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// ExecContext executes a query with the given arguments.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is the implementation of TxInterface for managing database transactions.
type Tx struct {
	internal *sql.Tx
}

// NewTx creates a new instance of Tx with the provided sql.Tx.
func NewTx(tx *sql.Tx) TxInterface {
	return &Tx{
		internal: tx,
	}
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.internal.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.internal.Rollback()
}

// QueryContext executes a query that returns rows within the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.internal.QueryContext(ctx, query, args...)
}

// ExecContext executes a query with the given arguments.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.internal.ExecContext(ctx, query, args...)
}
