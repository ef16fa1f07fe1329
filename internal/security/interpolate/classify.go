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

package interpolate

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// SecurityContext selects the sanitizer applied to interpolated values.
type SecurityContext string

const (
	// ContextAuto selects the sanitizer with Classify.
	ContextAuto SecurityContext = "auto"
	// ContextSQL escapes values for SQL string literals.
	ContextSQL SecurityContext = "sql"
	// ContextHTML escapes values for HTML text and attributes.
	ContextHTML SecurityContext = "html"
	// ContextScript escapes values for JavaScript string literals.
	ContextScript SecurityContext = "script"
	// ContextURL percent-encodes values embedded in URLs.
	ContextURL SecurityContext = "url"
	// ContextEmail strips header-injection characters.
	ContextEmail SecurityContext = "email"
	// ContextGeneral strips control characters.
	ContextGeneral SecurityContext = "general"
)

// ParseSecurityContext converts a configuration string to a SecurityContext. Empty means auto.
func ParseSecurityContext(s string) (SecurityContext, error) {
	switch sc := SecurityContext(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ContextAuto, nil
	case ContextAuto, ContextSQL, ContextHTML, ContextScript, ContextURL, ContextEmail, ContextGeneral:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown security context %q", s)
	}
}

// Classify guesses the security context of a templated field from its key and template text.
// It is a best-effort heuristic; the sanitizer it selects is the actual safety net.
func Classify(key, template string) SecurityContext {
	k := strings.ToLower(key)
	switch {
	case containsAny(k, "sql", "query"):
		return ContextSQL
	case containsAny(k, "url", "uri", "href", "link", "endpoint", "webhook"):
		return ContextURL
	case containsAny(k, "email", "mail", "recipient"):
		return ContextEmail
	case containsAny(k, "script", "code"):
		return ContextScript
	case strings.Contains(k, "html") || isMarkup(template):
		return ContextHTML
	default:
		return ContextGeneral
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

// isMarkup reports whether the template contains at least one HTML tag.
func isMarkup(template string) bool {
	if !strings.ContainsRune(template, '<') {
		return false
	}
	tokenizer := html.NewTokenizer(strings.NewReader(template))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			return true
		}
		if tokenizer.Err() == io.EOF {
			return false
		}
	}
}
