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

// Package provider provides functionality for opening database connections to workflow targets.
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/asgardeo/conduit/internal/system/database/client"
	"github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/log"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

const defaultConnectTimeout = 15 * time.Second

// ConnectionConfig describes a single target database connection.
type ConnectionConfig struct {
	Dialect        string        `mapstructure:"dialect" validate:"required,oneof=postgres sqlite sqlserver"`
	Host           string        `mapstructure:"host" validate:"required_unless=Dialect sqlite"`
	Port           int           `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	SSLMode        string        `mapstructure:"sslMode"`
	Path           string        `mapstructure:"path" validate:"required_if=Dialect sqlite"`
	Options        string        `mapstructure:"options"`
	ConnectTimeout time.Duration `mapstructure:"-"`
}

// dbConfig represents the resolved driver configuration.
type dbConfig struct {
	dsn        string
	driverName string
}

// DBProviderInterface defines the interface for opening database clients.
type DBProviderInterface interface {
	// Open opens and verifies a connection. The caller owns the returned client and must close it.
	Open(ctx context.Context, conn ConnectionConfig) (client.DBClientInterface, error)
}

// DBProvider is the implementation of DBProviderInterface.
type DBProvider struct{}

// NewDBProvider creates a new DBProvider.
func NewDBProvider() DBProviderInterface {
	return &DBProvider{}
}

// Open opens a single-connection pool against the target and pings it.
func (d *DBProvider) Open(ctx context.Context, conn ConnectionConfig) (client.DBClientInterface, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "DBProvider"))

	cfg, err := getDBConfig(conn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.driverName, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Connections are opened per invocation, so a single connection is sufficient.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	timeout := conn.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.driverName == model.DialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to enable foreign key constraints: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to enable foreign key constraints: %w", err)
		}
	}

	logger.Debug("Opened database connection", log.String("dialect", conn.Dialect),
		log.String(log.LoggerKeyHostname, conn.Host))
	return client.NewDBClient(model.NewDB(db), cfg.driverName), nil
}

// getDBConfig returns the driver name and DSN for the given connection.
func getDBConfig(conn ConnectionConfig) (dbConfig, error) {
	var cfg dbConfig

	switch conn.Dialect {
	case model.DialectPostgres:
		port := conn.Port
		if port == 0 {
			port = 5432
		}
		sslMode := conn.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		cfg.driverName = model.DialectPostgres
		cfg.dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			quoteKeywordValue(conn.Host), port, quoteKeywordValue(conn.Username),
			quoteKeywordValue(conn.Password), quoteKeywordValue(conn.Database), quoteKeywordValue(sslMode))
	case model.DialectSQLServer:
		port := conn.Port
		if port == 0 {
			port = 1433
		}
		query := url.Values{}
		if conn.Database != "" {
			query.Set("database", conn.Database)
		}
		if conn.SSLMode != "" {
			query.Set("encrypt", conn.SSLMode)
		}
		dsn := url.URL{
			Scheme:   model.DialectSQLServer,
			User:     url.UserPassword(conn.Username, conn.Password),
			Host:     net.JoinHostPort(conn.Host, strconv.Itoa(port)),
			RawQuery: query.Encode(),
		}
		cfg.driverName = model.DialectSQLServer
		cfg.dsn = dsn.String()
	case model.DialectSQLite:
		if conn.Path == "" {
			return cfg, errors.New("sqlite connection requires a path")
		}
		options := conn.Options
		if options != "" && options[0] != '?' {
			options = "?" + options
		}
		cfg.driverName = model.DialectSQLite
		cfg.dsn = conn.Path + options
	default:
		return cfg, fmt.Errorf("unsupported database dialect: %s", conn.Dialect)
	}

	return cfg, nil
}

// quoteKeywordValue quotes a libpq keyword/value DSN component when it contains spaces or quotes.
func quoteKeywordValue(v string) string {
	needsQuote := v == ""
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}
	escaped := make([]rune, 0, len(v)+2)
	escaped = append(escaped, '\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, r)
	}
	escaped = append(escaped, '\'')
	return string(escaped)
}
