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
	"html"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

var sqlCommentTokens = strings.NewReplacer("--", "", "/*", "", "*/", "", "\x00", "")

var scriptExtraEscapes = strings.NewReplacer("'", "\\u0027", "`", "\\u0060", "\u2028", "\\u2028", "\u2029", "\\u2029")

// Sanitize applies the sanitizer for sc to s. ContextAuto is treated as general.
func Sanitize(s string, sc SecurityContext) string {
	switch sc {
	case ContextSQL:
		return SanitizeSQL(s)
	case ContextHTML:
		return SanitizeHTML(s)
	case ContextScript:
		return SanitizeScript(s)
	case ContextURL:
		return SanitizeURLComponent(s)
	case ContextEmail:
		return SanitizeEmail(s)
	default:
		return SanitizeGeneral(s)
	}
}

// SanitizeSQL doubles single quotes and strips NUL bytes and comment tokens.
func SanitizeSQL(s string) string {
	// Strip repeatedly so that overlapping tokens such as "-/**/-" cannot reassemble.
	for {
		stripped := sqlCommentTokens.Replace(s)
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ReplaceAll(s, "'", "''")
}

// SanitizeHTML escapes HTML special characters including backticks.
func SanitizeHTML(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "`", "&#96;")
}

// SanitizeScript escapes s for use inside a JavaScript string literal of any quote style.
func SanitizeScript(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	out := string(encoded)
	out = out[1 : len(out)-1]
	return scriptExtraEscapes.Replace(out)
}

// SanitizeURLComponent percent-encodes s for use as a URL component.
func SanitizeURLComponent(s string) string {
	return url.QueryEscape(s)
}

// SanitizeURLValue strips control characters from a value that is itself a complete URL.
func SanitizeURLValue(s string) string {
	return stripControl(s, false)
}

// escapeURLValue encodes text for the position its placeholder takes in a URL template. prefix is
// the template text before the placeholder. A complete URL is kept as-is only when it is the whole
// template or its leading base; path segments and the authority are path-escaped and anything after
// '?' or '#' is query-escaped.
func escapeURLValue(text, prefix string, whole bool) string {
	switch {
	case (whole || prefix == "") && looksLikeURL(text):
		return SanitizeURLValue(text)
	case whole || strings.ContainsAny(prefix, "?#"):
		return SanitizeURLComponent(text)
	case inAuthority(prefix):
		// An '@' would turn the preceding host into userinfo.
		return strings.ReplaceAll(url.PathEscape(text), "@", "%40")
	default:
		return url.PathEscape(text)
	}
}

// inAuthority reports whether a placeholder following prefix sits in the host part of the URL.
func inAuthority(prefix string) bool {
	i := strings.Index(prefix, "://")
	return i >= 0 && !strings.Contains(prefix[i+3:], "/")
}

// SanitizeEmail strips CR, LF and other control characters to prevent header injection.
func SanitizeEmail(s string) string {
	return strings.TrimSpace(stripControl(s, false))
}

// SanitizeGeneral strips control characters except tab and newline.
func SanitizeGeneral(s string) string {
	return stripControl(s, true)
}

func stripControl(s string, keepTabNewline bool) string {
	return strings.Map(func(r rune) rune {
		if keepTabNewline && (r == '\t' || r == '\n') {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, s)
}

// looksLikeURL reports whether s is an absolute http(s) URL.
func looksLikeURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
