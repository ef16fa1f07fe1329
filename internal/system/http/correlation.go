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

package http

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/asgardeo/conduit/internal/system/constants"
)

// Correlation identifies the workflow run and step issuing an outbound call.
type Correlation struct {
	RunID  string
	StepID string
}

// NewCorrelationID returns a composite "<runId>:<stepId>:<uuid>" identifier.
func NewCorrelationID(runID, stepID string) string {
	return fmt.Sprintf("%s:%s:%s", runID, stepID, uuid.NewString())
}

// Headers returns the correlation headers for a single outbound call.
func (c Correlation) Headers() http.Header {
	h := http.Header{}
	h.Set(constants.WorkflowRunIDHeaderName, c.RunID)
	h.Set(constants.WorkflowStepIDHeaderName, c.StepID)
	h.Set(constants.CorrelationIDHeaderName, NewCorrelationID(c.RunID, c.StepID))
	h.Set(constants.UserAgentHeaderName, constants.UserAgent)
	return h
}

// Apply sets the correlation headers on req, replacing any caller-supplied values.
func (c Correlation) Apply(req *http.Request) {
	for k, v := range c.Headers() {
		req.Header[k] = v
	}
}

// CorrelationTransport attaches correlation headers to every request it forwards.
type CorrelationTransport struct {
	Base        http.RoundTripper
	Correlation Correlation
}

// NewCorrelationTransport wraps base so each request carries the given correlation.
func NewCorrelationTransport(base http.RoundTripper, c Correlation) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CorrelationTransport{Base: base, Correlation: c}
}

// RoundTrip clones the request, adds the correlation headers and forwards it.
func (t *CorrelationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	t.Correlation.Apply(clone)
	return t.Base.RoundTrip(clone)
}
