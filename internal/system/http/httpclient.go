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

// Package http provides the outbound HTTP clients used by node executors.
package http

import (
	"net/http"

	"github.com/asgardeo/conduit/internal/security/urlguard"
)

// HTTPClientInterface defines the interface for HTTP client operations.
type HTTPClientInterface interface {
	// Do executes an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
	// Get issues a GET to the specified URL.
	Get(url string) (*http.Response, error)
}

// HTTPClient implements HTTPClientInterface and wraps a configured http.Client.
type HTTPClient struct {
	client *http.Client
}

var _ HTTPClientInterface = (*HTTPClient)(nil)

// NewHTTPClientWithConfig creates a new HTTPClient around the given client.
func NewHTTPClientWithConfig(client *http.Client) HTTPClientInterface {
	return &HTTPClient{
		client: client,
	}
}

// NewGuardedHTTPClient creates an HTTPClient whose every dial and redirect hop is checked by the guard.
func NewGuardedHTTPClient(guard *urlguard.Guard, opts GuardedClientOptions) HTTPClientInterface {
	return NewHTTPClientWithConfig(NewGuardedClient(guard, opts))
}

// Do executes an HTTP request and returns an HTTP response.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Get issues a GET to the specified URL.
func (c *HTTPClient) Get(url string) (*http.Response, error) {
	return c.client.Get(url)
}

// StandardClient returns the underlying http.Client.
func (c *HTTPClient) StandardClient() *http.Client {
	return c.client
}
