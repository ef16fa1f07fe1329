//go:build integration

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

package testutils

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

var client = &http.Client{Timeout: 30 * time.Second}

// ExecuteNode posts a node execution request and returns the status code and decoded body.
func ExecuteNode(nodeType string, config map[string]any, execCtx map[string]any) (int, map[string]any, error) {
	payload, err := json.Marshal(map[string]any{
		"nodeType": nodeType,
		"config":   config,
		"context":  execCtx,
	})
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Post(TestServerURL+"/flow/nodes/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to parse response %q: %w", string(body), err)
	}
	return resp.StatusCode, out, nil
}

// Get issues a GET request against the test server and returns the status code and body.
func Get(path string) (int, []byte, error) {
	resp, err := client.Get(TestServerURL + path)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}
