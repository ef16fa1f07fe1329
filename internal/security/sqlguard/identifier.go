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
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/asgardeo/conduit/internal/system/database/model"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

// MaxIdentifierLength is the longest identifier accepted.
const MaxIdentifierLength = 128

var (
	identifierPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	dottedIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// reservedWords are rejected as identifiers, together with system database names.
var reservedWords = toSet(
	"ADD", "ALL", "ALTER", "AND", "ANY", "AS", "ASC", "AUTHORIZATION", "BACKUP", "BEGIN", "BETWEEN",
	"BREAK", "BULK", "BY", "CASCADE", "CASE", "CHECK", "CHECKPOINT", "CLOSE", "COLUMN", "COMMIT",
	"CONSTRAINT", "CONTINUE", "CREATE", "CROSS", "CURSOR", "DATABASE", "DBCC", "DEALLOCATE", "DECLARE",
	"DEFAULT", "DELETE", "DENY", "DESC", "DISTINCT", "DROP", "DUMP", "ELSE", "END", "ESCAPE", "EXCEPT",
	"EXEC", "EXECUTE", "EXISTS", "EXIT", "FETCH", "FOREIGN", "FROM", "FULL", "FUNCTION", "GOTO", "GRANT",
	"GROUP", "HAVING", "IF", "IN", "INDEX", "INNER", "INSERT", "INTERSECT", "INTO", "IS", "JOIN", "KEY",
	"KILL", "LEFT", "LIKE", "LIMIT", "LOGIN", "MERGE", "NOT", "NULL", "OF", "OFFSET", "ON", "OPEN",
	"OPENQUERY", "OPENROWSET", "OR", "ORDER", "OUTER", "PRIMARY", "PROC", "PROCEDURE", "PUBLIC", "RAISERROR",
	"READ", "RECONFIGURE", "REFERENCES", "REPLACE", "RESTORE", "RETURN", "REVERT", "REVOKE", "RIGHT",
	"ROLE", "ROLLBACK", "SCHEMA", "SELECT", "SET", "SHUTDOWN", "TABLE", "THEN", "TO", "TOP", "TRAN",
	"TRANSACTION", "TRIGGER", "TRUNCATE", "UNION", "UNIQUE", "UPDATE", "USE", "USER", "VALUES", "VIEW",
	"WAITFOR", "WHEN", "WHERE", "WHILE", "WITH",
	// System databases and roles.
	"MASTER", "MODEL", "MSDB", "TEMPDB", "SYS", "SA", "POSTGRES", "TEMPLATE0", "TEMPLATE1",
	"INFORMATION_SCHEMA", "PG_CATALOG", "SQLITE_MASTER",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ValidateIdentifier checks a database, login, schema or table name and returns it without
// bracket or double-quote wrapping. With allowDots a single schema qualifier is accepted.
func ValidateIdentifier(name string, allowDots bool) (string, error) {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return "", rejectIdentifier(ReasonEmpty, "Identifier is required")
	}

	segments := []string{cleaned}
	if allowDots {
		segments = splitQualified(cleaned)
	}
	for i, seg := range segments {
		segments[i] = unwrap(seg)
	}
	cleaned = strings.Join(segments, ".")

	if len(cleaned) > MaxIdentifierLength {
		return "", rejectIdentifier(ReasonLength,
			fmt.Sprintf("Identifier exceeds maximum length of %d characters", MaxIdentifierLength))
	}

	pattern := identifierPattern
	if allowDots {
		pattern = dottedIdentifierPattern
	}
	if !pattern.MatchString(cleaned) {
		return "", rejectIdentifier(ReasonIdentifier, fmt.Sprintf("Invalid identifier %q", name))
	}

	for _, seg := range segments {
		if _, reserved := reservedWords[strings.ToUpper(seg)]; reserved {
			return "", rejectIdentifier(ReasonReservedWord,
				fmt.Sprintf("Identifier %q is a reserved word", seg))
		}
	}
	return cleaned, nil
}

// QuoteIdentifier quotes an already validated identifier for the given dialect.
func QuoteIdentifier(dialect, name string) string {
	segments := strings.Split(name, ".")
	for i, seg := range segments {
		switch dialect {
		case model.DialectSQLServer:
			segments[i] = "[" + strings.ReplaceAll(seg, "]", "]]") + "]"
		case model.DialectPostgres:
			segments[i] = pq.QuoteIdentifier(seg)
		default:
			segments[i] = `"` + strings.ReplaceAll(seg, `"`, `""`) + `"`
		}
	}
	return strings.Join(segments, ".")
}

// splitQualified splits on dots that are outside bracket or double-quote wrapping.
func splitQualified(name string) []string {
	var parts []string
	var current strings.Builder
	var closing byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case closing != 0:
			if c == closing {
				closing = 0
			}
			current.WriteByte(c)
		case c == '[':
			closing = ']'
			current.WriteByte(c)
		case c == '"':
			closing = '"'
			current.WriteByte(c)
		case c == '.':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	return append(parts, current.String())
}

func unwrap(seg string) string {
	if len(seg) >= 2 {
		if (seg[0] == '[' && seg[len(seg)-1] == ']') || (seg[0] == '"' && seg[len(seg)-1] == '"') {
			return seg[1 : len(seg)-1]
		}
	}
	return seg
}

func rejectIdentifier(reason, message string) error {
	metrics.RecordSQLRejection(reason)
	return &ValidationError{Reason: reason, Message: message}
}
