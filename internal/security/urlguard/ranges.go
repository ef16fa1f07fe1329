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

import "net"

// Range is the address class of a literal IP.
type Range string

const (
	// RangePublic is a globally routable address.
	RangePublic Range = "public"
	// RangePrivate covers RFC 1918, RFC 6598 shared space and IPv6 unique local addresses.
	RangePrivate Range = "private"
	// RangeLoopback covers 127.0.0.0/8 and ::1.
	RangeLoopback Range = "loopback"
	// RangeLinkLocal covers 169.254.0.0/16 and fe80::/10.
	RangeLinkLocal Range = "link-local"
	// RangeMulticast covers multicast groups.
	RangeMulticast Range = "multicast"
	// RangeReserved covers unspecified, documentation, benchmarking and future-use blocks.
	RangeReserved Range = "reserved"
)

var sharedAddressSpace = mustCIDR("100.64.0.0/10")

var reservedNets = []*net.IPNet{
	mustCIDR("0.0.0.0/8"),
	mustCIDR("192.0.0.0/24"),
	mustCIDR("192.0.2.0/24"),
	mustCIDR("198.18.0.0/15"),
	mustCIDR("198.51.100.0/24"),
	mustCIDR("203.0.113.0/24"),
	mustCIDR("240.0.0.0/4"),
	mustCIDR("2001:db8::/32"),
	mustCIDR("64:ff9b::/96"),
	mustCIDR("100::/64"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// unwrap converts IPv4-mapped IPv6 addresses to their IPv4 form.
func unwrap(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// ClassifyIP returns the address class of ip.
func ClassifyIP(ip net.IP) Range {
	ip = unwrap(ip)
	switch {
	case ip.IsLoopback():
		return RangeLoopback
	case ip.IsLinkLocalUnicast():
		return RangeLinkLocal
	case ip.IsMulticast():
		return RangeMulticast
	case ip.IsPrivate(), sharedAddressSpace.Contains(ip):
		return RangePrivate
	case ip.IsUnspecified():
		return RangeReserved
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return RangeReserved
		}
	}
	return RangePublic
}

// isInternalRange reports whether r is reachable only from inside a network.
func isInternalRange(r Range) bool {
	return r == RangeLoopback || r == RangePrivate || r == RangeLinkLocal
}
