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

// dangerousSchemes lists schemes that can reach local resources or interpreters.
var dangerousSchemes = map[string]struct{}{
	"file": {}, "ftp": {}, "gopher": {}, "dict": {}, "ldap": {}, "ldaps": {}, "tftp": {}, "jar": {},
	"netdoc": {}, "data": {}, "javascript": {}, "vbscript": {}, "php": {}, "expect": {}, "smb": {},
	"telnet": {}, "ssh": {}, "sftp": {},
}

// metadataHosts lists cloud instance metadata endpoints by name.
var metadataHosts = map[string]struct{}{
	"metadata":                   {},
	"metadata.google.internal":   {},
	"metadata.goog":              {},
	"metadata.azure.com":         {},
	"instance-data":              {},
	"instance-data.ec2.internal": {},
}

// metadataIPs lists cloud instance metadata endpoints by address.
var metadataIPs = []net.IP{
	net.ParseIP("169.254.169.254"),
	net.ParseIP("169.254.170.2"),
	net.ParseIP("fd00:ec2::254"),
	net.ParseIP("100.100.100.200"),
}

// localhostAliases lists names that resolve to the loopback interface.
var localhostAliases = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
}

// blockedPorts lists well-known internal service ports.
var blockedPorts = map[int]struct{}{
	22: {}, 23: {}, 25: {}, 110: {}, 135: {}, 139: {}, 143: {}, 445: {}, 1433: {}, 1521: {}, 2375: {},
	2376: {}, 2379: {}, 2380: {}, 3306: {}, 3389: {}, 5432: {}, 5672: {}, 5984: {}, 6379: {}, 6443: {},
	9200: {}, 9300: {}, 10250: {}, 11211: {}, 15672: {}, 27017: {},
}

// IsBlockedPort reports whether the port belongs to an internal service.
func IsBlockedPort(port int) bool {
	_, ok := blockedPorts[port]
	return ok
}

// IsMetadataIP reports whether the address is a cloud metadata endpoint.
func IsMetadataIP(ip net.IP) bool {
	ip = unwrap(ip)
	for _, m := range metadataIPs {
		if m.Equal(ip) {
			return true
		}
	}
	return false
}

func isMetadataHost(host string) bool {
	_, ok := metadataHosts[host]
	return ok
}

func isLocalhostAlias(host string) bool {
	if _, ok := localhostAliases[host]; ok {
		return true
	}
	return len(host) > len(".localhost") && host[len(host)-len(".localhost"):] == ".localhost"
}
