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

type scriptRule struct {
	name    string
	pattern *regexp.Regexp
}

// scriptRules reject obvious attempts to reach outside the sandbox. They run before compilation.
var scriptRules = []scriptRule{
	{"module loading", regexp.MustCompile(`\brequire\s*\(|\bimport\b`)},
	{"process access", regexp.MustCompile(`\bprocess\b|child_process`)},
	{"global scope access", regexp.MustCompile(`\bglobalThis\b`)},
	{"dynamic evaluation", regexp.MustCompile(`\beval\s*\(|\bFunction\s*\(`)},
	{"prototype access", regexp.MustCompile(`\bconstructor\b|__proto__`)},
	{"reflection", regexp.MustCompile(`\bReflect\b|\bProxy\b`)},
	{"low-level primitives", regexp.MustCompile(`\bWebAssembly\b|\bAtomics\b|\bSharedArrayBuffer\b`)},
}

// ValidateScript applies the static rules and the size ceiling to a script body.
func ValidateScript(script string, maxBytes int) error {
	if strings.TrimSpace(script) == "" {
		return newScriptError(CategoryValidation, "Script is required")
	}
	if maxBytes > 0 && len(script) > maxBytes {
		return newScriptError(CategoryValidation, "Script exceeds maximum size of %d bytes", maxBytes)
	}
	for _, rule := range scriptRules {
		if rule.pattern.MatchString(script) {
			return &ScriptError{Category: CategoryValidation,
				Message: fmt.Sprintf("Script contains a blocked construct: %s", rule.name)}
		}
	}
	return nil
}
