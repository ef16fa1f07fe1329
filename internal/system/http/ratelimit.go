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
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter hands out one token bucket per tenant for outbound calls.
type TenantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewTenantLimiter creates a limiter. A non-positive rate disables limiting.
func NewTenantLimiter(requestsPerSecond float64, burst int) *TenantLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &TenantLimiter{
		limit:    limit,
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// Wait blocks until the tenant may issue another request or ctx is done.
func (l *TenantLimiter) Wait(ctx context.Context, tenantID string) error {
	return l.get(tenantID).Wait(ctx)
}

// Allow reports whether the tenant may issue a request now without waiting.
func (l *TenantLimiter) Allow(tenantID string) bool {
	return l.get(tenantID).Allow()
}

func (l *TenantLimiter) get(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenantID] = lim
	}
	return lim
}

// RateLimitedTransport waits for a tenant token before forwarding each request.
type RateLimitedTransport struct {
	Base     http.RoundTripper
	Limiter  *TenantLimiter
	TenantID string
}

// NewRateLimitedTransport wraps base so every request, including redirect hops, consumes a token
// from the tenant's bucket.
func NewRateLimitedTransport(base http.RoundTripper, limiter *TenantLimiter, tenantID string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{Base: base, Limiter: limiter, TenantID: tenantID}
}

// RoundTrip blocks until the tenant may send or the request context is done.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context(), t.TenantID); err != nil {
			return nil, err
		}
	}
	return t.Base.RoundTrip(req)
}
