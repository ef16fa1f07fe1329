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
	"errors"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var errInvalidHost = errors.New("invalid hostname")

// hostProfile converts host names to their ASCII lookup form.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// NormalizeHost lowercases the host, strips a trailing dot, converts IDNs to punycode and
// rewrites legacy IPv4 notations (decimal, hex, octal, short forms) to dotted quads.
// The returned IP is non-nil when the host is an IP literal.
func NormalizeHost(host string) (string, net.IP, error) {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", nil, errInvalidHost
	}

	if strings.Contains(host, ":") {
		// Zone identifiers are never valid outbound targets.
		if strings.Contains(host, "%") {
			return "", nil, errInvalidHost
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return "", nil, errInvalidHost
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), v4, nil
		}
		return ip.String(), ip, nil
	}

	if ip, numeric, err := parseLegacyIPv4(host); numeric {
		if err != nil {
			return "", nil, err
		}
		return ip.String(), ip, nil
	}

	ascii, err := hostProfile.ToASCII(host)
	if err != nil || ascii == "" {
		return "", nil, errInvalidHost
	}
	for _, r := range ascii {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.' || r == '_') {
			return "", nil, errInvalidHost
		}
	}
	return ascii, nil, nil
}

// parseLegacyIPv4 parses host the way inet_aton does. numeric is false when any label is not a
// number, in which case host is treated as a DNS name.
func parseLegacyIPv4(host string) (net.IP, bool, error) {
	parts := strings.Split(host, ".")
	if len(parts) > 4 {
		return nil, false, nil
	}

	values := make([]uint64, len(parts))
	for i, part := range parts {
		v, ok := parseLegacyNumber(part)
		if !ok {
			return nil, false, nil
		}
		values[i] = v
	}

	// All labels are numeric from here on, so the host is an address or invalid.
	last := len(values) - 1
	for i := 0; i < last; i++ {
		if values[i] > 0xff {
			return nil, true, errInvalidHost
		}
	}
	if values[last] >= 1<<(8*uint(4-last)) {
		return nil, true, errInvalidHost
	}

	var addr uint32
	for i := 0; i < last; i++ {
		addr |= uint32(values[i]) << (8 * uint(3-i))
	}
	addr |= uint32(values[last])

	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).To4(), true, nil
}

func parseLegacyNumber(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	base := 10
	digits := s
	switch {
	case len(s) > 1 && (s[:2] == "0x" || s[:2] == "0X"):
		base = 16
		digits = s[2:]
		if digits == "" {
			return 0, true
		}
	case len(s) > 1 && s[0] == '0':
		base = 8
		digits = s[1:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 1 << 40, true
		}
		return 0, false
	}
	return v, true
}
