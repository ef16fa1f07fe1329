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

package urlguard

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
)

var production = Options{}
var development = Options{AllowInternal: true}

type URLGuardTestSuite struct {
	suite.Suite
	observed *observer.ObservedLogs
}

func TestURLGuardSuite(t *testing.T) {
	suite.Run(t, new(URLGuardTestSuite))
}

func (suite *URLGuardTestSuite) SetupTest() {
	core, observed := observer.New(zapcore.DebugLevel)
	suite.observed = observed
	log.SetLogger(zap.New(core))
}

func (suite *URLGuardTestSuite) TestMetadataBlockedInAllModes() {
	for _, opts := range []Options{production, development} {
		res := Validate("http://169.254.169.254/latest/meta-data/", opts)
		assert.False(suite.T(), res.IsValid)
		assert.Equal(suite.T(), MetadataBlockedMessage, res.Error)
		assert.Empty(suite.T(), res.SanitizedURL)
	}

	for _, raw := range []string{
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://METADATA.goog./",
		"http://[fd00:ec2::254]/",
		"http://100.100.100.200/latest/",
		"http://0xA9FEA9FE/",
		"http://2852039166/",
		"http://[::ffff:169.254.169.254]/",
		"http://instance-data/latest/",
	} {
		res := Validate(raw, development)
		assert.False(suite.T(), res.IsValid, raw)
		assert.Equal(suite.T(), ReasonMetadata, res.Reason, raw)
	}
}

func (suite *URLGuardTestSuite) TestInternalAddressesByMode() {
	internal := []string{
		"http://10.0.0.5/",
		"http://192.168.1.10:8080/status",
		"http://172.16.0.1/",
		"http://127.0.0.1/",
		"http://[::1]/",
		"http://169.254.10.10/",
		"http://[fe80::1]/",
		"http://[fc00::1]/",
		"http://0177.0.0.1/",
		"http://0x7f.1/",
		"http://2130706433/",
		"http://127.1/",
		"http://100.64.1.1/",
		"http://0.0.0.0/",
	}
	for _, raw := range internal {
		res := Validate(raw, production)
		assert.False(suite.T(), res.IsValid, raw)
		assert.NotEmpty(suite.T(), res.Error, raw)

		res = Validate(raw, development)
		assert.True(suite.T(), res.IsValid, raw)
		assert.NotEmpty(suite.T(), res.SanitizedURL, raw)
	}

	exceptions := suite.observed.FilterMessage("Allowing internal outbound target in non-production mode").All()
	assert.GreaterOrEqual(suite.T(), len(exceptions), len(internal))
}

func (suite *URLGuardTestSuite) TestLegacyEncodingsCanonicalized() {
	res := Validate("http://2130706433:8080/path", development)
	require.True(suite.T(), res.IsValid)
	assert.Equal(suite.T(), "http://127.0.0.1:8080/path", res.SanitizedURL)
	assert.Equal(suite.T(), "127.0.0.1", res.Hostname)
	assert.Equal(suite.T(), 8080, res.Port)

	res = Validate("http://0x7f.0.0.1/", development)
	require.True(suite.T(), res.IsValid)
	assert.Equal(suite.T(), "http://127.0.0.1/", res.SanitizedURL)
}

func (suite *URLGuardTestSuite) TestLocalhostAliases() {
	for _, raw := range []string{
		"http://localhost:3000/",
		"http://LOCALHOST./",
		"http://api.localhost/",
		"http://ip6-localhost/",
	} {
		res := Validate(raw, production)
		assert.False(suite.T(), res.IsValid, raw)
		assert.Equal(suite.T(), ReasonLocalhost, res.Reason, raw)

		assert.True(suite.T(), Validate(raw, development).IsValid, raw)
	}
}

func (suite *URLGuardTestSuite) TestSchemes() {
	res := Validate("file:///etc/passwd", development)
	assert.False(suite.T(), res.IsValid)
	assert.Equal(suite.T(), `Dangerous URL scheme "file" is blocked`, res.Error)

	res = Validate("gopher://example.com:70/_x", development)
	assert.Equal(suite.T(), ReasonDangerousScheme, res.Reason)

	res = Validate("JavaScript:alert(1)", development)
	assert.Equal(suite.T(), ReasonDangerousScheme, res.Reason)

	res = Validate("ws://example.com/socket", development)
	assert.False(suite.T(), res.IsValid)
	assert.Equal(suite.T(), `Unsupported URL scheme "ws": only http and https are allowed`, res.Error)

	res = Validate("http://example.com/", Options{EnforceHTTPS: true})
	assert.Equal(suite.T(), ReasonHTTPSRequired, res.Reason)
	assert.True(suite.T(), Validate("https://example.com/", Options{EnforceHTTPS: true}).IsValid)
}

func (suite *URLGuardTestSuite) TestMalformed() {
	for _, raw := range []string{"", "   ", "http://", "http://[::1", "http://exa mple.com/", "https://example.com:99999/"} {
		res := Validate(raw, development)
		assert.False(suite.T(), res.IsValid, raw)
		assert.Empty(suite.T(), res.SanitizedURL, raw)
		assert.NotEmpty(suite.T(), res.Error, raw)
	}
}

func (suite *URLGuardTestSuite) TestAllowedDomains() {
	opts := Options{AllowedDomains: []string{"api.partner.example.com"}}
	res := Validate("https://api.partner.example.com/x", opts)
	assert.True(suite.T(), res.IsValid)
	assert.Equal(suite.T(), "https://api.partner.example.com/x", res.SanitizedURL)
	assert.Equal(suite.T(), 443, res.Port)
	assert.Equal(suite.T(), "api.partner.example.com", res.Hostname)

	res = Validate("https://evil.partner.example.com/x", opts)
	assert.False(suite.T(), res.IsValid)
	assert.Equal(suite.T(), `Domain "evil.partner.example.com" is not in the allowed domains list`, res.Error)

	wildcard := Options{AllowedDomains: []string{"*.example.org", ".example.net"}}
	assert.True(suite.T(), Validate("https://a.b.example.org/", wildcard).IsValid)
	assert.False(suite.T(), Validate("https://example.org/", wildcard).IsValid)
	assert.False(suite.T(), Validate("https://badexample.org/", wildcard).IsValid)
	assert.True(suite.T(), Validate("https://example.net/", wildcard).IsValid)
	assert.True(suite.T(), Validate("https://www.example.net/", wildcard).IsValid)

	devOpts := Options{AllowInternal: true, AllowedDomains: []string{"api.example.com"}}
	assert.True(suite.T(), Validate("http://localhost:8080/", devOpts).IsValid)
	assert.True(suite.T(), Validate("http://10.1.2.3/", devOpts).IsValid)
	assert.False(suite.T(), Validate("https://other.example.com/", devOpts).IsValid)
}

func (suite *URLGuardTestSuite) TestBlockedPorts() {
	res := Validate("http://example.com:6379/", production)
	assert.False(suite.T(), res.IsValid)
	assert.Equal(suite.T(), "Port 6379 is blocked for security reasons", res.Error)

	assert.True(suite.T(), Validate("http://example.com:6379/", development).IsValid)
	assert.True(suite.T(), Validate("https://example.com:8443/", production).IsValid)
}

func (suite *URLGuardTestSuite) TestIdempotence() {
	for _, raw := range []string{
		"https://Example.COM./a/b?q=1#frag",
		"https://bücher.example/katalog",
		"http://example.com:8080/x%20y",
		"https://user@api.example.com/path",
		"HTTPS://API.example.com",
	} {
		first := Validate(raw, production)
		require.True(suite.T(), first.IsValid, raw)
		second := Validate(first.SanitizedURL, production)
		require.True(suite.T(), second.IsValid, raw)
		assert.Equal(suite.T(), first.SanitizedURL, second.SanitizedURL, raw)
	}

	res := Validate("https://bücher.example/katalog", production)
	assert.Equal(suite.T(), "https://xn--bcher-kva.example/katalog", res.SanitizedURL)
}

func (suite *URLGuardTestSuite) TestIdempotenceIPv6() {
	first := Validate("http://[2606:4700:4700::1111]:8080/dns", production)
	require.True(suite.T(), first.IsValid)
	assert.Equal(suite.T(), "http://[2606:4700:4700::1111]:8080/dns", first.SanitizedURL)
	assert.Equal(suite.T(), first.SanitizedURL, Validate(first.SanitizedURL, production).SanitizedURL)
}

func (suite *URLGuardTestSuite) TestValidateHost() {
	guard := NewGuard(production)
	assert.NoError(suite.T(), guard.ValidateHost("sftp.example.com", 22222))
	assert.Error(suite.T(), guard.ValidateHost("10.0.0.1", 2222))
	assert.Error(suite.T(), guard.ValidateHost("sftp.example.com", 22))
	assert.Error(suite.T(), guard.ValidateHost("metadata.google.internal", 80))

	devGuard := NewGuard(development)
	assert.NoError(suite.T(), devGuard.ValidateHost("10.0.0.1", 22))

	var policyErr *PolicyError
	err := guard.ValidateHost("169.254.169.254", 80)
	require.ErrorAs(suite.T(), err, &policyErr)
	assert.Equal(suite.T(), ReasonMetadata, policyErr.Reason)
}

func (suite *URLGuardTestSuite) TestCheckIP() {
	guard := NewGuard(production)
	assert.NoError(suite.T(), guard.CheckIP(net.ParseIP("93.184.216.34")))
	assert.Error(suite.T(), guard.CheckIP(net.ParseIP("10.0.0.1")))
	assert.Error(suite.T(), guard.CheckIP(net.ParseIP("::1")))
	assert.Error(suite.T(), guard.CheckIP(nil))

	devGuard := NewGuard(development)
	assert.NoError(suite.T(), devGuard.CheckIP(net.ParseIP("10.0.0.1")))
	assert.Error(suite.T(), devGuard.CheckIP(net.ParseIP("169.254.169.254")))
}

func (suite *URLGuardTestSuite) TestClassifyIP() {
	testCases := []struct {
		ip       string
		expected Range
	}{
		{"8.8.8.8", RangePublic},
		{"10.1.1.1", RangePrivate},
		{"100.64.0.1", RangePrivate},
		{"127.0.0.1", RangeLoopback},
		{"::ffff:127.0.0.1", RangeLoopback},
		{"169.254.1.1", RangeLinkLocal},
		{"224.0.0.1", RangeMulticast},
		{"ff02::1", RangeMulticast},
		{"192.0.2.5", RangeReserved},
		{"::", RangeReserved},
		{"2001:4860:4860::8888", RangePublic},
	}
	for _, tc := range testCases {
		assert.Equal(suite.T(), tc.expected, ClassifyIP(net.ParseIP(tc.ip)), tc.ip)
	}
}

func (suite *URLGuardTestSuite) TestRejectionsAreLogged() {
	Validate("http://10.0.0.1/", production)

	entries := suite.observed.FilterMessage("Blocked outbound target").All()
	require.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), "10.0.0.1", entries[0].ContextMap()[log.LoggerKeyHostname])
	assert.Equal(suite.T(), string(RangePrivate), entries[0].ContextMap()["range"])
}

func (suite *URLGuardTestSuite) TestOptionsFromConfig() {
	cfg := config.DefaultConfig()
	cfg.Security.AllowedDomains = []string{"api.example.com"}
	opts := OptionsFromConfig(cfg)
	assert.False(suite.T(), opts.AllowInternal)
	assert.Equal(suite.T(), []string{"api.example.com"}, opts.AllowedDomains)

	cfg.Environment = "development"
	assert.True(suite.T(), OptionsFromConfig(cfg).AllowInternal)
}
