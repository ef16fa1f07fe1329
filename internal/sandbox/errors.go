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

package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// Category classifies a script failure.
type Category string

// Script failure categories.
const (
	CategoryValidation  Category = "validation"
	CategoryCompilation Category = "compilation"
	CategoryTimeout     Category = "timeout"
	CategoryMemoryLimit Category = "memory_limit"
	CategoryRuntime     Category = "runtime"
	CategoryInternal    Category = "internal"
	CategoryCapacity    Category = "capacity"
)

// maxMessageLength bounds the length of a sanitized error message.
const maxMessageLength = 500

// ScriptError is the only error type returned by Executor.Run. Message never contains stack
// frames or host paths.
type ScriptError struct {
	Category Category
	Message  string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func newScriptError(category Category, format string, args ...any) *ScriptError {
	return &ScriptError{Category: category, Message: sanitizeMessage(fmt.Sprintf(format, args...))}
}

var (
	stackFramePattern = regexp.MustCompile(`(?m)\s+at\s+.*$`)
	hostPathPattern   = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[\w.\-]+[/\\])+[\w.\-]*`)
)

// sanitizeMessage removes stack frames and host paths and truncates the message.
func sanitizeMessage(msg string) string {
	msg = stackFramePattern.ReplaceAllString(msg, "")
	msg = hostPathPattern.ReplaceAllString(msg, "<path>")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength] + "..."
	}
	return msg
}
