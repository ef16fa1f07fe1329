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

package sqlguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asgardeo/conduit/internal/system/database/client"
	"github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

// DefaultTimeout is used when ExecOptions.Timeout is not set.
const DefaultTimeout = 30 * time.Second

// ExecOptions controls ExecuteSafely.
type ExecOptions struct {
	IsAdminQuery      bool
	Timeout           time.Duration
	AllowedOperations []string
	MaxLength         int
}

// QueryResult is the outcome of a statement execution.
type QueryResult struct {
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"rowCount"`
	RowsAffected int64            `json:"rowsAffected"`
	Operations   []string         `json:"operations,omitempty"`
	Duration     time.Duration    `json:"-"`
}

// ExecuteSafely re-validates statement, binds the named @param placeholders for the connection's
// dialect and runs the statement under a timeout.
//
// On timeout the statement context is cancelled, which aborts the statement on drivers that
// support cancellation. The call returns ErrTimeout at the deadline, or ErrCancelled when ctx is
// cancelled first, whether or not the driver stops. A driver that ignores cancellation may still
// complete the statement afterwards, so callers must not assume a timed-out write did not happen.
func ExecuteSafely(ctx context.Context, conn client.DBClientInterface, statement string, params map[string]any,
	opts ExecOptions) (*QueryResult, error) {
	res := ValidateStatement(statement, StatementOptions{
		AllowedOperations: opts.AllowedOperations,
		IsAdminQuery:      opts.IsAdminQuery,
		MaxLength:         opts.MaxLength,
	})
	if !res.IsValid {
		return nil, res.Err()
	}

	bound, args, err := BindParams(statement, params, conn.Dialect())
	if err != nil {
		return nil, err
	}

	query := model.DBQuery{ID: "ASQ-USER-STATEMENT", Query: bound}
	returnsRows := len(res.Operations) == 1 && ReturnsRows(res.Operations[0])

	result, err := run(ctx, conn, query, opts.Timeout, returnsRows, args...)
	if err != nil {
		return nil, err
	}
	result.Operations = res.Operations
	return result, nil
}

// ExecuteTemplate runs a fixed, compiled-in statement with bound arguments only. It skips
// statement validation because no caller text reaches the statement.
func ExecuteTemplate(ctx context.Context, conn client.DBClientInterface, query model.DBQuery,
	timeout time.Duration, args ...any) (*QueryResult, error) {
	return run(ctx, conn, query, timeout, false, args...)
}

// QueryTemplate is ExecuteTemplate for templates that return rows.
func QueryTemplate(ctx context.Context, conn client.DBClientInterface, query model.DBQuery,
	timeout time.Duration, args ...any) (*QueryResult, error) {
	return run(ctx, conn, query, timeout, true, args...)
}

type outcome struct {
	result *QueryResult
	err    error
}

// run races the statement against the timeout and the caller's cancellation.
func run(ctx context.Context, conn client.DBClientInterface, query model.DBQuery, timeout time.Duration,
	returnsRows bool, args ...any) (*QueryResult, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("driver panic: %v", r)}
			}
		}()
		if returnsRows {
			rows, err := conn.Query(execCtx, query, args...)
			done <- outcome{result: &QueryResult{Rows: rows, RowCount: len(rows)}, err: err}
			return
		}
		affected, err := conn.Execute(execCtx, query, args...)
		done <- outcome{result: &QueryResult{RowsAffected: affected}, err: err}
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Debug("SQL execution cancelled by caller", log.String("queryID", query.GetID()))
			metrics.RecordSQLRejection("cancelled")
			return nil, ErrCancelled
		}
		logger.Warn("SQL execution timed out", log.String("queryID", query.GetID()),
			log.Duration("timeout", timeout))
		metrics.RecordSQLRejection("timeout")
		return nil, ErrTimeout
	case o := <-done:
		if o.err != nil {
			sanitized := SanitizeError(o.err)
			logger.Debug("SQL execution failed", log.String("queryID", query.GetID()),
				log.String("category", sanitized.Error()), log.Error(o.err))
			return nil, sanitized
		}
		o.result.Duration = time.Since(start)
		return o.result, nil
	}
}

// BindParams rewrites the named @param placeholders of statement for dialect and returns the driver
// arguments. PostgreSQL placeholders become $n; SQL Server and SQLite keep @name with sql.Named.
// Every placeholder must have a value in params.
func BindParams(statement string, params map[string]any, dialect string) (string, []any, error) {
	var b strings.Builder
	var args []any
	positions := map[string]int{}
	var closing byte

	for i := 0; i < len(statement); i++ {
		c := statement[i]
		if closing != 0 {
			b.WriteByte(c)
			if c == closing {
				closing = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			closing = c
			b.WriteByte(c)
		case c == '[':
			closing = ']'
			b.WriteByte(c)
		case c == '@' && i+1 < len(statement) && statement[i+1] == '@':
			// Server variables such as @@ROWCOUNT.
			b.WriteString("@@")
			i++
		case c == '@' && i+1 < len(statement) && isIdentStart(statement[i+1]):
			j := i + 1
			for j < len(statement) && isIdentPart(statement[j]) {
				j++
			}
			name := statement[i+1 : j]
			value, ok := params[name]
			if !ok {
				return "", nil, &ValidationError{Reason: ReasonParameter,
					Message: fmt.Sprintf("No value bound for parameter @%s", name)}
			}
			if dialect == model.DialectPostgres {
				pos, seen := positions[name]
				if !seen {
					args = append(args, value)
					pos = len(args)
					positions[name] = pos
				}
				b.WriteString("$" + strconv.Itoa(pos))
			} else {
				if _, seen := positions[name]; !seen {
					args = append(args, sql.Named(name, value))
					positions[name] = len(args)
				}
				b.WriteString("@" + name)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), args, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
