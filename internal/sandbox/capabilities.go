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
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capabilities is the complete set of host facilities a script can reach besides the language
// built-ins and its input. It is built by the host and fixed for the lifetime of an Executor.
type Capabilities struct {
	// Env is exposed read-only as the env binding. Build it with FilterEnv.
	Env map[string]string
	// Helpers is exposed as the helpers binding when non-nil.
	Helpers *Helpers
}

// Helpers are the host functions exposed under helpers.*. A nil field is not exposed.
type Helpers struct {
	SHA256       func(s string) string
	Base64Encode func(s string) string
	Base64Decode func(s string) (string, error)
	UUID         func() string
	Now          func() time.Time
}

// DefaultHelpers returns the standard helper set.
func DefaultHelpers() *Helpers {
	return &Helpers{
		SHA256: func(s string) string {
			sum := sha256.Sum256([]byte(s))
			return hex.EncodeToString(sum[:])
		},
		Base64Encode: func(s string) string {
			return base64.StdEncoding.EncodeToString([]byte(s))
		},
		Base64Decode: func(s string) (string, error) {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		UUID: func() string {
			return uuid.NewString()
		},
		Now: time.Now,
	}
}

var secretNamePattern = regexp.MustCompile(
	`(?i)secret|passw(or)?d|passwd|token|api_?key|private|credential|auth|cert|signing|session`)

// FilterEnv returns the environment entries whose names start with one of the allowed prefixes,
// minus names that look like secrets. environ uses the KEY=VALUE form of os.Environ.
func FilterEnv(environ []string, allowPrefixes []string) map[string]string {
	env := map[string]string{}
	if len(allowPrefixes) == 0 {
		return env
	}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		if !hasAnyPrefix(key, allowPrefixes) || secretNamePattern.MatchString(key) {
			continue
		}
		env[key] = value
	}
	return env
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
