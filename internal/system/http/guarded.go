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
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/asgardeo/conduit/internal/security/urlguard"
)

// ErrTooManyRedirects is returned when a response chain exceeds the redirect cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// GuardedClientOptions configures a policy-enforcing outbound client.
type GuardedClientOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
	// Wrap decorates the guarded base transport, e.g. to attach correlation headers.
	Wrap func(http.RoundTripper) http.RoundTripper
}

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewGuardedDialContext returns a dial function that resolves the target itself and refuses
// addresses rejected by the guard, so DNS answers cannot redirect a validated host inward.
func NewGuardedDialContext(guard *urlguard.Guard, dialer *net.Dialer, resolver Resolver) func(
	ctx context.Context, network, addr string) (net.Conn, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		var ips []net.IP
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			addrs, err := resolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no addresses found for %s", host)
		}

		var lastErr error
		for _, ip := range ips {
			if err := guard.CheckIP(ip); err != nil {
				lastErr = err
				continue
			}
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// NewGuardedClient builds an http.Client whose dialer and redirect policy are bound to the guard.
func NewGuardedClient(guard *urlguard.Guard, opts GuardedClientOptions) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	// The client lives for one node invocation, so connections are never pooled past it.
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           NewGuardedDialContext(guard, dialer, nil),
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if opts.Wrap != nil {
		rt = opts.Wrap(rt)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     rt,
		CheckRedirect: RedirectPolicy(guard, opts.FollowRedirects, opts.MaxRedirects),
	}
}

// RedirectPolicy re-validates every redirect hop and caps the chain length.
func RedirectPolicy(guard *urlguard.Guard, follow bool, maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if len(via) > maxRedirects {
			return ErrTooManyRedirects
		}
		res := guard.Validate(req.URL.String())
		if !res.IsValid {
			return &urlguard.PolicyError{Reason: res.Reason, Message: "Redirect blocked: " + res.Error}
		}
		return nil
	}
}
