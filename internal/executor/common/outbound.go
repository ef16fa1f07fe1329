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

package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

// ErrResponseTooLarge is returned when a response body exceeds the configured ceiling.
var ErrResponseTooLarge = errors.New("response body exceeds the maximum allowed size")

// OutboundOptions configures an outbound client for one node invocation.
type OutboundOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
}

// NewOutboundClient returns a guarded client for one invocation. Every request, including
// redirect hops, is rate limited per tenant and carries the run and step correlation headers.
func NewOutboundClient(guard *urlguard.Guard, limiter *httpclient.TenantLimiter, execCtx *model.ExecutionContext,
	opts OutboundOptions) httpclient.HTTPClientInterface {
	correlation := httpclient.Correlation{}
	tenantID := ""
	if execCtx != nil {
		correlation = httpclient.Correlation{RunID: execCtx.RunID, StepID: execCtx.StepID}
		tenantID = execCtx.TenantID
	}
	return httpclient.NewGuardedHTTPClient(guard, httpclient.GuardedClientOptions{
		Timeout:         opts.Timeout,
		FollowRedirects: opts.FollowRedirects,
		MaxRedirects:    opts.MaxRedirects,
		Wrap: func(base http.RoundTripper) http.RoundTripper {
			return httpclient.NewCorrelationTransport(
				httpclient.NewRateLimitedTransport(base, limiter, tenantID), correlation)
		},
	})
}

// ReadLimited reads r fully unless it holds more than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// FailureFromTransportError classifies an error returned by an outbound client call.
func FailureFromTransportError(err error, timeout time.Duration) *model.NodeResult {
	var policyErr *urlguard.PolicyError
	if errors.As(err, &policyErr) {
		return model.Failure(constants.ErrorTypePolicy, policyErr.Message)
	}
	if errors.Is(err, httpclient.ErrTooManyRedirects) {
		return model.Failure(constants.ErrorTypePolicy, "Too many redirects")
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return model.Failure(constants.ErrorTypeExecution, "Response body exceeds the maximum allowed size")
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return model.Failure(constants.ErrorTypeNoResponse, fmt.Sprintf("No response received within %s", timeout))
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return model.Failure(constants.ErrorTypeNoResponse, "No response received from the remote server")
	}
	return model.Failure(constants.ErrorTypeRequestSetup, "Failed to send the request")
}

// NodeLogger returns a logger carrying the node type and the run, step and tenant identifiers.
func NodeLogger(component string, nodeType constants.NodeType, execCtx *model.ExecutionContext) *log.Logger {
	fields := []log.Field{
		log.String(log.LoggerKeyComponentName, component),
		log.String(log.LoggerKeyNodeType, string(nodeType)),
	}
	if execCtx != nil {
		fields = append(fields,
			log.String(log.LoggerKeyRunID, execCtx.RunID),
			log.String(log.LoggerKeyStepID, execCtx.StepID))
		if execCtx.TenantID != "" {
			fields = append(fields, log.String(log.LoggerKeyTenantID, execCtx.TenantID))
		}
	}
	return log.GetLogger().With(fields...)
}
