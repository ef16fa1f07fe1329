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

// Package sqladmin provides the executor for administrative SQL nodes. Every action builds its
// statement from validated identifiers and bound parameters; free-form statements are only
// accepted through the SQL interpolation mode.
package sqladmin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/sqlguard"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/database/client"
	dbmodel "github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/database/provider"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "SQLAdminExecutor"

// Supported actions.
const (
	ActionCreateDatabase   = "create_database"
	ActionDropDatabase     = "drop_database"
	ActionCreateLogin      = "create_login"
	ActionDropLogin        = "drop_login"
	ActionSetRecoveryModel = "set_recovery_model"
	ActionExecuteQuery     = "execute_query"
)

// maxLoginPasswordLength is the longest value QUOTENAME accepts.
const maxLoginPasswordLength = 128

// Connection describes the target database.
type Connection struct {
	Type     string `json:"type" validate:"required,oneof=sqlserver postgres sqlite"`
	Host     string `json:"host" validate:"required_unless=Type sqlite"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	Path     string `json:"path" validate:"required_if=Type sqlite"`
}

// Options carries the action arguments.
type Options struct {
	DatabaseName      string         `json:"databaseName"`
	LoginName         string         `json:"loginName"`
	Password          string         `json:"password" validate:"omitempty,max=128"`
	RecoveryModel     string         `json:"recoveryModel" validate:"omitempty,oneof=FULL SIMPLE BULK_LOGGED"`
	Query             string         `json:"query"`
	Parameters        map[string]any `json:"parameters"`
	AllowedOperations []string       `json:"allowedOperations"`
	IsAdminQuery      bool           `json:"isAdminQuery"`
	IfExists          bool           `json:"ifExists"`
	IfNotExists       bool           `json:"ifNotExists"`
	Transaction       bool           `json:"transaction"`
	TimeoutSeconds    int            `json:"timeoutSeconds" validate:"omitempty,min=1,max=3600"`
}

// Config is the sql_admin node configuration.
type Config struct {
	Connection Connection `json:"connection"`
	Action     string     `json:"action" validate:"required,oneof=create_database drop_database create_login drop_login set_recovery_model execute_query"`
	Options    Options    `json:"options"`
}

// SQLAdminExecutor runs one administrative action per invocation on a connection it opens and closes.
type SQLAdminExecutor struct {
	dbProvider     provider.DBProviderInterface
	guard          *urlguard.Guard
	defaultTimeout time.Duration
	maxLength      int
}

var _ model.NodeExecutorInterface = (*SQLAdminExecutor)(nil)

// NewSQLAdminExecutor creates an executor that opens target connections through dbProvider.
func NewSQLAdminExecutor(dbProvider provider.DBProviderInterface, guard *urlguard.Guard,
	cfg config.SQLConfig) *SQLAdminExecutor {
	return &SQLAdminExecutor{
		dbProvider:     dbProvider,
		guard:          guard,
		defaultTimeout: time.Duration(cfg.DefaultTimeoutSeconds) * time.Second,
		maxLength:      cfg.MaxStatementLength,
	}
}

// GetType returns the node type handled by the executor.
func (e *SQLAdminExecutor) GetType() constants.NodeType {
	return constants.NodeTypeSQLAdmin
}

// Execute runs the configured action.
func (e *SQLAdminExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

// action is a validated, ready to run action.
type action func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error)

func (e *SQLAdminExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	if err := common.DecodeConfig(rawConfig, nil, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}
	if err := e.checkTarget(cfg.Connection); err != nil {
		return common.FailureFromError(err, "Database target is not allowed")
	}

	timeout := e.defaultTimeout
	if cfg.Options.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Options.TimeoutSeconds) * time.Second
	}

	// Everything is validated before a connection is opened.
	run, err := e.prepare(cfg, execCtx, timeout)
	if err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}

	conn, err := e.dbProvider.Open(ctx, provider.ConnectionConfig{
		Dialect:        cfg.Connection.Type,
		Host:           cfg.Connection.Host,
		Port:           cfg.Connection.Port,
		Username:       cfg.Connection.Username,
		Password:       cfg.Connection.Password,
		Database:       cfg.Connection.Database,
		SSLMode:        cfg.Connection.SSLMode,
		Path:           cfg.Connection.Path,
		ConnectTimeout: timeout,
	})
	if err != nil {
		logger.Debug("Failed to open target database", log.String("dialect", cfg.Connection.Type),
			log.Error(err))
		return common.FailureFromError(sqlguard.SanitizeError(err), "Database connection failed")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("Error closing target database connection", log.Error(closeErr))
		}
	}()

	res, err := run(ctx, conn)
	if err != nil {
		logger.Debug("Administrative SQL action failed", log.String("action", cfg.Action), log.Error(err))
		return common.FailureFromError(sqlguard.SanitizeError(err), sqlguard.ErrExecutionFailed.Error())
	}
	logger.Debug("Administrative SQL action completed", log.String("action", cfg.Action))
	return res.WithField("action", cfg.Action)
}

// checkTarget applies the outbound policy to the database host. Local SQLite files are only
// reachable in non-production mode. Service ports are not checked because database ports are
// the point of the node.
func (e *SQLAdminExecutor) checkTarget(conn Connection) error {
	if conn.Type == dbmodel.DialectSQLite {
		if e.guard != nil && !e.guard.AllowInternal() {
			return &urlguard.PolicyError{Reason: urlguard.ReasonInternalAddress,
				Message: "SQLite targets are not allowed in production"}
		}
		return nil
	}
	if e.guard == nil {
		return nil
	}
	return e.guard.ValidateHost(conn.Host, 0)
}

func (e *SQLAdminExecutor) prepare(cfg Config, execCtx *model.ExecutionContext,
	timeout time.Duration) (action, error) {
	dialect := cfg.Connection.Type
	opts := cfg.Options

	switch cfg.Action {
	case ActionCreateDatabase:
		name, err := identifier(opts.DatabaseName, "databaseName", dialect, dbmodel.DialectSQLServer,
			dbmodel.DialectPostgres)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
			if opts.IfNotExists {
				exists, err := e.exists(ctx, conn, QueryDatabaseExists, timeout, name)
				if err != nil {
					return nil, err
				}
				if exists {
					return adminResult("database", name, false), nil
				}
			}
			if _, err := sqlguard.ExecuteTemplate(ctx, conn, queryCreateDatabase(dialect, name), timeout); err != nil {
				return nil, err
			}
			return adminResult("database", name, true), nil
		}, nil

	case ActionDropDatabase:
		name, err := identifier(opts.DatabaseName, "databaseName", dialect, dbmodel.DialectSQLServer,
			dbmodel.DialectPostgres)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
			if _, err := sqlguard.ExecuteTemplate(ctx, conn, queryDropDatabase(dialect, name, opts.IfExists),
				timeout); err != nil {
				return nil, err
			}
			return adminResult("database", name, true), nil
		}, nil

	case ActionCreateLogin:
		name, err := identifier(opts.LoginName, "loginName", dialect, dbmodel.DialectSQLServer,
			dbmodel.DialectPostgres)
		if err != nil {
			return nil, err
		}
		if opts.Password == "" {
			return nil, &common.ConfigError{Message: "Invalid node configuration: options.password is required"}
		}
		if len(opts.Password) > maxLoginPasswordLength {
			return nil, &common.ConfigError{Message: "Invalid node configuration: options.password is too long"}
		}
		return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
			if opts.IfNotExists {
				exists, err := e.exists(ctx, conn, QueryLoginExists, timeout, name)
				if err != nil {
					return nil, err
				}
				if exists {
					return adminResult("login", name, false), nil
				}
			}
			if err := createLogin(ctx, conn, name, opts.Password, timeout); err != nil {
				return nil, err
			}
			return adminResult("login", name, true), nil
		}, nil

	case ActionDropLogin:
		name, err := identifier(opts.LoginName, "loginName", dialect, dbmodel.DialectSQLServer,
			dbmodel.DialectPostgres)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
			// SQL Server has no DROP LOGIN IF EXISTS.
			if opts.IfExists && dialect == dbmodel.DialectSQLServer {
				exists, err := e.exists(ctx, conn, QueryLoginExists, timeout, name)
				if err != nil {
					return nil, err
				}
				if !exists {
					return adminResult("login", name, false), nil
				}
			}
			if _, err := sqlguard.ExecuteTemplate(ctx, conn, queryDropLogin(dialect, name, opts.IfExists),
				timeout); err != nil {
				return nil, err
			}
			return adminResult("login", name, true), nil
		}, nil

	case ActionSetRecoveryModel:
		name, err := identifier(opts.DatabaseName, "databaseName", dialect, dbmodel.DialectSQLServer)
		if err != nil {
			return nil, err
		}
		if opts.RecoveryModel == "" {
			return nil, &common.ConfigError{Message: "Invalid node configuration: options.recoveryModel is required"}
		}
		return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
			if _, err := sqlguard.ExecuteTemplate(ctx, conn, querySetRecoveryModel(dialect, name, opts.RecoveryModel),
				timeout); err != nil {
				return nil, err
			}
			return adminResult("database", name, true).WithField("recoveryModel", opts.RecoveryModel), nil
		}, nil

	case ActionExecuteQuery:
		return e.prepareQuery(opts, execCtx, timeout)
	}
	return nil, &common.ConfigError{Message: fmt.Sprintf("Invalid node configuration: unsupported action %q", cfg.Action)}
}

// prepareQuery turns every placeholder of the statement into a bound parameter and validates it.
func (e *SQLAdminExecutor) prepareQuery(opts Options, execCtx *model.ExecutionContext,
	timeout time.Duration) (action, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, &common.ConfigError{Message: "Invalid node configuration: options.query is required"}
	}
	root := execCtx.InterpolationContext()
	statement, params, err := interpolate.InterpolateSQL(opts.Query, root)
	if err != nil {
		return nil, err
	}
	for name, raw := range opts.Parameters {
		if _, taken := params[name]; taken {
			return nil, &common.ConfigError{
				Message: fmt.Sprintf("Invalid node configuration: parameter name %q is reserved", name)}
		}
		value, err := interpolate.Interpolate(raw, root, interpolate.ContextGeneral)
		if err != nil {
			return nil, err
		}
		params[name] = value
	}

	allowed := opts.AllowedOperations
	if len(allowed) == 0 {
		allowed = []string{"SELECT"}
	}
	execOpts := sqlguard.ExecOptions{
		IsAdminQuery:      opts.IsAdminQuery,
		Timeout:           timeout,
		AllowedOperations: allowed,
		MaxLength:         e.maxLength,
	}
	if res := sqlguard.ValidateStatement(statement, sqlguard.StatementOptions{
		AllowedOperations: execOpts.AllowedOperations,
		IsAdminQuery:      execOpts.IsAdminQuery,
		MaxLength:         execOpts.MaxLength,
	}); !res.IsValid {
		return nil, res.Err()
	}

	return func(ctx context.Context, conn client.DBClientInterface) (*model.NodeResult, error) {
		var result *sqlguard.QueryResult
		runStatement := func(target client.DBClientInterface) error {
			var err error
			result, err = sqlguard.ExecuteSafely(ctx, target, statement, params, execOpts)
			return err
		}
		var err error
		if opts.Transaction {
			// All statements of the batch commit together or not at all.
			err = client.RunInTx(ctx, conn, runStatement)
		} else {
			err = runStatement(conn)
		}
		if err != nil {
			return nil, err
		}
		data := any(result.Rows)
		if result.Rows == nil {
			data = []map[string]any{}
		}
		res := model.Success(data).
			WithField("rowCount", result.RowCount).
			WithField("rowsAffected", result.RowsAffected).
			WithField("operations", result.Operations)
		res.Duration = result.Duration
		return res, nil
	}, nil
}

func (e *SQLAdminExecutor) exists(ctx context.Context, conn client.DBClientInterface, query dbmodel.DBQuery,
	timeout time.Duration, name string) (bool, error) {
	res, err := sqlguard.QueryTemplate(ctx, conn, query, timeout, bindArgs(conn.Dialect(),
		sql.Named("name", name))...)
	if err != nil {
		return false, err
	}
	return res.RowCount > 0, nil
}

func createLogin(ctx context.Context, conn client.DBClientInterface, name, password string,
	timeout time.Duration) error {
	args := bindArgs(conn.Dialect(), sql.Named("login", name), sql.Named("password", password))
	if conn.Dialect() != dbmodel.DialectPostgres {
		_, err := sqlguard.ExecuteTemplate(ctx, conn, QueryCreateLogin, timeout, args...)
		return err
	}

	rendered, err := sqlguard.QueryTemplate(ctx, conn, QueryCreateLogin, timeout, args...)
	if err != nil {
		return err
	}
	if rendered.RowCount != 1 {
		return sqlguard.ErrExecutionFailed
	}
	statement, ok := rendered.Rows[0]["statement"].(string)
	if !ok || statement == "" {
		return sqlguard.ErrExecutionFailed
	}
	_, err = sqlguard.ExecuteTemplate(ctx, conn, queryExecuteRendered(statement), timeout)
	return err
}

// bindArgs returns positional values for PostgreSQL and named arguments for the other dialects.
func bindArgs(dialect string, named ...sql.NamedArg) []any {
	args := make([]any, 0, len(named))
	for _, arg := range named {
		if dialect == dbmodel.DialectPostgres {
			args = append(args, arg.Value)
			continue
		}
		args = append(args, arg)
	}
	return args
}

// identifier validates name and checks that the action is available for dialect.
func identifier(name, field, dialect string, supported ...string) (string, error) {
	ok := false
	for _, d := range supported {
		if d == dialect {
			ok = true
			break
		}
	}
	if !ok {
		return "", &common.ConfigError{
			Message: fmt.Sprintf("Invalid node configuration: action is not supported for %s targets", dialect)}
	}
	if strings.TrimSpace(name) == "" {
		return "", &common.ConfigError{Message: fmt.Sprintf("Invalid node configuration: options.%s is required", field)}
	}
	return sqlguard.ValidateIdentifier(name, false)
}

func adminResult(kind, name string, changed bool) *model.NodeResult {
	return model.Success(map[string]any{kind: name, "changed": changed})
}
