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
	"errors"
	"strings"

	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
)

// Sanitized driver error vocabulary. Messages are surfaced to end users verbatim.
var (
	ErrAuthenticationFailed = errors.New("Database authentication failed")
	ErrTimeout              = errors.New("SQL execution timeout exceeded")
	ErrCancelled            = errors.New("SQL execution was cancelled")
	ErrPermissionDenied     = errors.New("Insufficient permissions to execute the SQL statement")
	ErrConnectionFailed     = errors.New("Database connection failed")
	ErrExecutionFailed      = errors.New("SQL execution failed")
)

// Validation failure reasons, also used as metric labels.
const (
	ReasonEmpty            = "empty"
	ReasonLength           = "length"
	ReasonIdentifier       = "identifier"
	ReasonReservedWord     = "reserved_word"
	ReasonDangerousPattern = "dangerous_pattern"
	ReasonOperation        = "operation"
	ReasonAdminRequired    = "admin_required"
	ReasonParameter        = "parameter"
)

// ValidationError describes an identifier or statement rejected before execution.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is a pre-execution validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SanitizeError maps a driver error to the sanitized vocabulary so that credentials, hostnames
// and server internals are never surfaced. Validation errors and already sanitized errors pass through.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	if IsValidationError(err) {
		return err
	}
	for _, known := range []error{ErrAuthenticationFailed, ErrTimeout, ErrCancelled, ErrPermissionDenied,
		ErrConnectionFailed, ErrExecutionFailed} {
		if errors.Is(err, known) {
			return known
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "28":
			return ErrAuthenticationFailed
		case pqErr.Code == "42501":
			return ErrPermissionDenied
		case pqErr.Code == "57014":
			return ErrTimeout
		case pqErr.Code.Class() == "08":
			return ErrConnectionFailed
		default:
			return ErrExecutionFailed
		}
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 18456, 18452, 18486, 18487, 18488:
			return ErrAuthenticationFailed
		case 229, 230, 262, 297, 300, 15247, 15151:
			return ErrPermissionDenied
		case -2, 3617:
			return ErrTimeout
		default:
			return ErrExecutionFailed
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "canceling statement"):
		return ErrTimeout
	case containsAny(msg, "login failed", "password authentication failed", "authentication failed",
		"invalid password", "sqlite_auth"):
		return ErrAuthenticationFailed
	case containsAny(msg, "permission denied", "access denied", "not authorized", "insufficient privilege",
		"does not have permission", "readonly database", "attempt to write a readonly"):
		return ErrPermissionDenied
	case containsAny(msg, "connection refused", "no such host", "connection reset", "broken pipe",
		"network is unreachable", "bad connection", "could not connect", "unable to open database",
		"sql: database is closed", "dial tcp", "eof"):
		return ErrConnectionFailed
	default:
		return ErrExecutionFailed
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
