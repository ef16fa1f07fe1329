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

// Package sqlguard validates SQL identifiers and statements and executes validated statements
// with bound parameters under a timeout.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

const loggerComponentName = "SQLGuard"

// DefaultMaxStatementLength is used when StatementOptions.MaxLength is not set.
const DefaultMaxStatementLength = 10000

// adminOperations require StatementOptions.IsAdminQuery.
var adminOperations = toSet("CREATE", "ALTER", "DROP", "BACKUP", "RESTORE", "TRUNCATE", "GRANT", "REVOKE")

// rowReturningOperations produce a result set.
var rowReturningOperations = toSet("SELECT", "SHOW", "EXPLAIN", "VALUES", "PRAGMA", "DESCRIBE")

// cteBodyOperations may follow a WITH clause.
var cteBodyOperations = toSet("SELECT", "INSERT", "UPDATE", "DELETE", "MERGE")

type dangerousPattern struct {
	name    string
	pattern *regexp.Regexp
}

// dangerousPatterns are matched case-insensitively against the whole statement.
var dangerousPatterns = []dangerousPattern{
	{"system catalog access", regexp.MustCompile(`(?i)\binformation_schema\b|\bsys\s*\.\s*\w+|` +
		`\bsys(objects|columns|users|logins|databases|servers|comments)\b|\bmaster\s*\.\s*(dbo\s*)?\.|` +
		`\bmsdb\s*\.|\bpg_(catalog|shadow|authid|user|roles|stat_activity|settings|hba_file_rules)\b|` +
		`\bsqlite_(master|schema|temp_master)\b|\bmysql\s*\.\s*user\b`)},
	{"dynamic SQL execution", regexp.MustCompile(`(?i)\bsp_executesql\b|\bxp_\w+|\bsp_oa\w*|` +
		`\bexec(ute)?\s*\(|\bexec(ute)?\s+(@|sp_|xp_)|\bopen(rowset|query|datasource)\b|\bdbms_\w+|` +
		`\bexecute\s+immediate\b|\bprepare\s+\w+\s+from\b`)},
	{"comment sequence", regexp.MustCompile(`--|/\*|\*/`)},
	{"UNION SELECT", regexp.MustCompile(`(?i)\bunion(\s+all|\s+distinct)?\s+select\b`)},
	{"quote breakout", regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\d+'?\s*(=|<|>|like)\s*'?\d+|` +
		`'\s*(or|and)\s+'[^']*'\s*(=|like)\s*'|'\s*;\s*\S|\bor\s+1\s*=\s*1\b|\bor\s+true\b`)},
	{"time-based delay", regexp.MustCompile(`(?i)\bwaitfor\s+(delay|time)\b|\bpg_sleep(_for|_until)?\s*\(|` +
		`\bsleep\s*\(|\bbenchmark\s*\(|\bdbms_lock\s*\.\s*sleep\b`)},
	{"file or OS access", regexp.MustCompile(`(?i)\bload_file\s*\(|\binto\s+(out|dump)file\b|` +
		`\bcopy\b[\s\S]*\b(program|stdin|stdout)\b|\bcopy\b[\s\S]*\b(from|to)\s+'|\bbulk\s+insert\b|` +
		`\bpg_(read|read_binary|ls)_(file|dir)\b|\blo_(import|export)\b|\bload\s+data\b|\battach\s+database\b|` +
		`\bload_extension\s*\(|\bxp_cmdshell\b`)},
}

// StatementOptions controls statement validation.
type StatementOptions struct {
	// AllowedOperations lists the permitted operation kinds. Empty means SELECT only.
	AllowedOperations []string
	// IsAdminQuery permits administrative operations such as CREATE and DROP.
	IsAdminQuery bool
	// MaxLength bounds the statement length. Zero means DefaultMaxStatementLength.
	MaxLength int
}

// ValidationResult is the outcome of ValidateStatement.
type ValidationResult struct {
	IsValid    bool     `json:"isValid"`
	Operations []string `json:"operations,omitempty"`
	Error      string   `json:"error,omitempty"`
	Reason     string   `json:"-"`
}

// Err returns the failure as a *ValidationError, or nil when the statement is valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Reason: r.Reason, Message: r.Error}
}

// ValidateStatement checks sql in order: length, dangerous patterns, operation kinds against the
// allowlist, then the admin flag. It never touches the network.
func ValidateStatement(sql string, opts StatementOptions) ValidationResult {
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxStatementLength
	}

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return rejectStatement(ReasonEmpty, "SQL statement is required")
	}
	if len(sql) > maxLength {
		return rejectStatement(ReasonLength,
			fmt.Sprintf("SQL statement exceeds maximum length of %d characters", maxLength))
	}

	for _, dp := range dangerousPatterns {
		if dp.pattern.MatchString(sql) {
			return rejectStatement(ReasonDangerousPattern,
				fmt.Sprintf("SQL statement contains a blocked pattern: %s", dp.name))
		}
	}

	statements := SplitStatements(trimmed)
	if len(statements) == 0 {
		return rejectStatement(ReasonEmpty, "SQL statement is required")
	}

	allowed := map[string]struct{}{}
	for _, op := range opts.AllowedOperations {
		allowed[strings.ToUpper(strings.TrimSpace(op))] = struct{}{}
	}
	if len(allowed) == 0 {
		allowed["SELECT"] = struct{}{}
	}

	operations := make([]string, 0, len(statements))
	for _, stmt := range statements {
		op := OperationKind(stmt)
		if op == "" {
			return rejectStatement(ReasonOperation, "Unable to determine the SQL operation")
		}
		if _, ok := allowed[op]; !ok {
			return rejectStatement(ReasonOperation, fmt.Sprintf("SQL operation %s is not allowed", op))
		}
		if _, admin := adminOperations[op]; admin && !opts.IsAdminQuery {
			return rejectStatement(ReasonAdminRequired,
				fmt.Sprintf("SQL operation %s requires an administrative query", op))
		}
		operations = append(operations, op)
	}

	return ValidationResult{IsValid: true, Operations: operations}
}

// SplitStatements splits sql on semicolons outside quoted literals and identifiers, dropping empty statements.
func SplitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var closing byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case closing != 0:
			current.WriteByte(c)
			if c == closing {
				if i+1 < len(sql) && sql[i+1] == closing {
					current.WriteByte(sql[i+1])
					i++
					continue
				}
				closing = 0
			}
		case c == '\'' || c == '"' || c == '`':
			closing = c
			current.WriteByte(c)
		case c == '[':
			closing = ']'
			current.WriteByte(c)
		case c == ';':
			if s := strings.TrimSpace(current.String()); s != "" {
				statements = append(statements, s)
			}
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		statements = append(statements, s)
	}
	return statements
}

// OperationKind returns the upper-case operation keyword of a single statement. For a WITH
// statement it returns the operation of the main query that follows the CTE definitions.
func OperationKind(stmt string) string {
	words := topLevelWords(stmt)
	if len(words) == 0 {
		return ""
	}
	first := words[0]
	switch first {
	case "EXECUTE":
		return "EXEC"
	case "WITH":
		for _, w := range words[1:] {
			if _, ok := cteBodyOperations[w]; ok {
				return w
			}
		}
		return ""
	}
	return first
}

// ReturnsRows reports whether the operation produces a result set.
func ReturnsRows(op string) bool {
	_, ok := rowReturningOperations[op]
	return ok
}

// topLevelWords returns the upper-cased words that appear outside parentheses and quotes.
func topLevelWords(stmt string) []string {
	var words []string
	var current strings.Builder
	var closing byte
	depth := 0
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToUpper(current.String()))
			current.Reset()
		}
	}
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if closing != 0 {
			if c == closing {
				closing = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			closing = c
		case c == '[':
			flush()
			closing = ']'
		case c == '(':
			flush()
			depth++
		case c == ')':
			flush()
			if depth > 0 {
				depth--
			}
		case depth == 0 && (unicode.IsLetter(rune(c)) || c == '_'):
			current.WriteByte(c)
		case depth == 0 && current.Len() > 0 && unicode.IsDigit(rune(c)):
			current.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return words
}

func rejectStatement(reason, message string) ValidationResult {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))
	logger.Warn("Rejected SQL statement", log.String("reason", reason), log.String("message", message))
	metrics.RecordSQLRejection(reason)
	return ValidationResult{IsValid: false, Error: message, Reason: reason}
}
