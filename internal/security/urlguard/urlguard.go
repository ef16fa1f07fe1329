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

// Package urlguard validates outbound URLs and hosts against server-side request forgery.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

const loggerComponentName = "URLGuard"

// MetadataBlockedMessage is returned for any request aimed at a cloud metadata endpoint.
const MetadataBlockedMessage = "Requests to cloud metadata service are blocked for security reasons"

// Rejection reasons, also used as metric labels.
const (
	ReasonMalformed       = "malformed"
	ReasonDangerousScheme = "dangerous_scheme"
	ReasonScheme          = "scheme"
	ReasonHTTPSRequired   = "https_required"
	ReasonMetadata        = "metadata"
	ReasonLocalhost       = "localhost"
	ReasonInternalAddress = "internal_address"
	ReasonDomain          = "domain"
	ReasonPort            = "port"
)

// Options controls the outbound policy.
type Options struct {
	// AllowInternal relaxes the internal address, localhost, allowlist and port rules. Never set in production.
	AllowInternal bool
	// AllowedDomains restricts targets to these hosts. Entries prefixed with "*." match subdomains,
	// entries prefixed with "." match the domain and its subdomains.
	AllowedDomains []string
	// EnforceHTTPS rejects plain http URLs.
	EnforceHTTPS bool
}

// OptionsFromConfig derives the outbound policy from the server configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AllowInternal:  !cfg.IsProduction(),
		AllowedDomains: cfg.Security.AllowedDomains,
		EnforceHTTPS:   cfg.Security.EnforceHTTPS,
	}
}

// Result is the outcome of validating a URL. Exactly one of SanitizedURL and Error is set.
type Result struct {
	IsValid      bool   `json:"isValid"`
	SanitizedURL string `json:"sanitizedUrl,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	Port         int    `json:"port,omitempty"`
	Error        string `json:"error,omitempty"`
	Reason       string `json:"-"`
}

// PolicyError is returned when a target violates the outbound policy.
type PolicyError struct {
	Reason  string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// Guard applies a fixed outbound policy. It is safe for concurrent use.
type Guard struct {
	allowInternal bool
	enforceHTTPS  bool
	exact         map[string]struct{}
	suffixes      []string
	apexes        map[string]struct{}
	logger        *log.Logger
}

// NewGuard creates a guard for the given options.
func NewGuard(opts Options) *Guard {
	g := &Guard{
		allowInternal: opts.AllowInternal,
		enforceHTTPS:  opts.EnforceHTTPS,
		exact:         map[string]struct{}{},
		apexes:        map[string]struct{}{},
		logger:        log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	for _, entry := range opts.AllowedDomains {
		entry = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(entry), "."))
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "*."):
			g.suffixes = append(g.suffixes, entry[1:])
		case strings.HasPrefix(entry, "."):
			g.suffixes = append(g.suffixes, entry)
			g.apexes[entry[1:]] = struct{}{}
		default:
			g.exact[entry] = struct{}{}
		}
	}
	return g
}

// Validate checks rawURL against opts. It never performs network I/O.
func Validate(rawURL string, opts Options) Result {
	return NewGuard(opts).Validate(rawURL)
}

// AllowInternal reports whether the guard runs with relaxed non-production rules.
func (g *Guard) AllowInternal() bool {
	return g.allowInternal
}

// Validate checks rawURL against the guard's policy and returns the normalized URL.
func (g *Guard) Validate(rawURL string) Result {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return g.reject("", "", &PolicyError{ReasonMalformed, "URL is required"})
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return g.reject("", "", &PolicyError{ReasonMalformed, "Invalid URL format"})
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := dangerousSchemes[scheme]; ok {
		return g.reject(u.Hostname(), "", dangerousSchemeError(scheme))
	}
	if scheme != "http" && scheme != "https" {
		return g.reject(u.Hostname(), "", &PolicyError{ReasonScheme,
			fmt.Sprintf("Unsupported URL scheme %q: only http and https are allowed", scheme)})
	}
	if g.enforceHTTPS && scheme == "http" {
		return g.reject(u.Hostname(), "", &PolicyError{ReasonHTTPSRequired, "HTTPS is required for outbound requests"})
	}
	if u.Opaque != "" || u.Host == "" || u.Hostname() == "" {
		return g.reject("", "", &PolicyError{ReasonMalformed, "URL must include a hostname"})
	}

	host, ip, err := NormalizeHost(u.Hostname())
	if err != nil {
		return g.reject(u.Hostname(), "", &PolicyError{ReasonMalformed, "Invalid hostname"})
	}

	port := 80
	if scheme == "https" {
		port = 443
	}
	explicitPort := u.Port()
	if explicitPort != "" {
		p, err := strconv.Atoi(explicitPort)
		if err != nil || p < 1 || p > 65535 {
			return g.reject(host, "", &PolicyError{ReasonMalformed, "Invalid port"})
		}
		port = p
		explicitPort = strconv.Itoa(p)
	}

	if err := g.checkHost(host, ip, port); err != nil {
		return Result{IsValid: false, Error: err.Message, Reason: err.Reason}
	}

	hostPart := host
	if ip != nil && ip.To4() == nil {
		hostPart = "[" + host + "]"
	}
	if explicitPort != "" {
		hostPart = net.JoinHostPort(strings.Trim(hostPart, "[]"), explicitPort)
	}
	u.Scheme = scheme
	u.Host = hostPart

	return Result{
		IsValid:      true,
		SanitizedURL: u.String(),
		Hostname:     host,
		Port:         port,
	}
}

// ValidateHost applies the host, address, allowlist and port rules to a non-HTTP target.
func (g *Guard) ValidateHost(host string, port int) error {
	normalized, ip, err := NormalizeHost(host)
	if err != nil {
		res := g.reject(host, "", &PolicyError{ReasonMalformed, "Invalid hostname"})
		return &PolicyError{Reason: res.Reason, Message: res.Error}
	}
	if port < 0 || port > 65535 {
		res := g.reject(normalized, "", &PolicyError{ReasonMalformed, "Invalid port"})
		return &PolicyError{Reason: res.Reason, Message: res.Error}
	}
	if perr := g.checkHost(normalized, ip, port); perr != nil {
		return perr
	}
	return nil
}

// CheckIP applies the address rules to a resolved IP. It is used at dial time so that DNS answers
// pointing at internal ranges are refused after resolution.
func (g *Guard) CheckIP(ip net.IP) error {
	if ip == nil {
		return &PolicyError{ReasonMalformed, "Invalid address"}
	}
	if IsMetadataIP(ip) {
		res := g.reject(ip.String(), string(ClassifyIP(ip)), &PolicyError{ReasonMetadata, MetadataBlockedMessage})
		return &PolicyError{Reason: res.Reason, Message: res.Error}
	}
	r := ClassifyIP(ip)
	if r == RangePublic {
		return nil
	}
	if g.allowInternal {
		g.exception(ip.String(), string(r), "resolved address")
		return nil
	}
	res := g.reject(ip.String(), string(r), internalAddressError(r))
	return &PolicyError{Reason: res.Reason, Message: res.Error}
}

// checkHost runs the metadata, localhost, address, allowlist and port rules on a normalized host.
func (g *Guard) checkHost(host string, ip net.IP, port int) *PolicyError {
	if isMetadataHost(host) || (ip != nil && IsMetadataIP(ip)) {
		return g.rejectErr(host, "metadata", &PolicyError{ReasonMetadata, MetadataBlockedMessage})
	}

	internal := false
	if isLocalhostAlias(host) {
		if !g.allowInternal {
			return g.rejectErr(host, string(RangeLoopback), &PolicyError{ReasonLocalhost,
				"Requests to localhost are blocked for security reasons"})
		}
		g.exception(host, string(RangeLoopback), "localhost alias")
		internal = true
	}

	if ip != nil {
		r := ClassifyIP(ip)
		if r != RangePublic {
			if !g.allowInternal {
				return g.rejectErr(host, string(r), internalAddressError(r))
			}
			g.exception(host, string(r), "literal address")
			internal = isInternalRange(r)
		}
	}

	if len(g.exact) > 0 || len(g.suffixes) > 0 {
		if !g.domainAllowed(host) {
			if g.allowInternal && internal {
				g.exception(host, "allowlist", "internal target outside allowlist")
			} else {
				return g.rejectErr(host, "", &PolicyError{ReasonDomain,
					fmt.Sprintf("Domain %q is not in the allowed domains list", host)})
			}
		}
	}

	if IsBlockedPort(port) {
		if !g.allowInternal {
			return g.rejectErr(host, "", &PolicyError{ReasonPort,
				fmt.Sprintf("Port %d is blocked for security reasons", port)})
		}
		g.exception(host, "port", strconv.Itoa(port))
	}

	return nil
}

func (g *Guard) domainAllowed(host string) bool {
	if _, ok := g.exact[host]; ok {
		return true
	}
	if _, ok := g.apexes[host]; ok {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

func (g *Guard) reject(host, ipRange string, err *PolicyError) Result {
	g.logger.Warn("Blocked outbound target",
		log.String(log.LoggerKeyHostname, host),
		log.String("range", ipRange),
		log.String("reason", err.Reason),
		log.String("message", err.Message))
	metrics.RecordURLRejection(err.Reason)
	return Result{IsValid: false, Error: err.Message, Reason: err.Reason}
}

func (g *Guard) rejectErr(host, ipRange string, err *PolicyError) *PolicyError {
	g.reject(host, ipRange, err)
	return err
}

func (g *Guard) exception(host, ipRange, detail string) {
	g.logger.Warn("Allowing internal outbound target in non-production mode",
		log.String(log.LoggerKeyHostname, host),
		log.String("range", ipRange),
		log.String("detail", detail))
	metrics.RecordURLException(ipRange)
}

func dangerousSchemeError(scheme string) *PolicyError {
	return &PolicyError{ReasonDangerousScheme, fmt.Sprintf("Dangerous URL scheme %q is blocked", scheme)}
}

func internalAddressError(r Range) *PolicyError {
	return &PolicyError{ReasonInternalAddress,
		fmt.Sprintf("Requests to %s addresses are blocked for security reasons", r)}
}
