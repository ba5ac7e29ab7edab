// Copyright 2026 The Apidash Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ssrf validates ingestion endpoint URLs: HTTPS required except
// for localhost, no embedded credentials, and no IP literal in a
// private/reserved range.
//
// DNS names are never resolved here, only IP literals are checked.
package ssrf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateEndpoint parses and validates endpoint, returning it unchanged on
// success. It never mutates or normalizes the URL beyond parsing it.
func ValidateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %s", endpoint)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid endpoint URL: %s", endpoint)
	}

	hostname := strings.ToLower(u.Hostname())
	isLocalhost := hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"

	if u.Scheme != "https" && !isLocalhost {
		return "", fmt.Errorf("https required for non-localhost endpoint: %s", endpoint)
	}

	if u.User != nil {
		return "", fmt.Errorf("endpoint url must not contain credentials")
	}

	if !isLocalhost && isPrivateIP(hostname) {
		return "", fmt.Errorf("endpoint resolves to private/reserved ip: %s", hostname)
	}

	return endpoint, nil
}

// cgnat is the carrier-grade NAT range, 100.64.0.0/10, not covered by
// net.IP.IsPrivate().
var cgnat = net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// isPrivateIP reports whether host is an IP literal in a private or
// reserved range. Non-IP-literal hostnames (ordinary DNS names) return
// false; they are not resolved at validation time. net.IP.To4 already
// unwraps IPv4-mapped IPv6 literals (::ffff:A.B.C.D) into their 4-byte
// form, so the IPv4 branch below covers that case too.
func isPrivateIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	if v4 := ip.To4(); v4 != nil {
		return v4.IsPrivate() || v4.IsLoopback() || v4.IsLinkLocalUnicast() ||
			v4.Equal(net.IPv4zero) || cgnat.Contains(v4)
	}

	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
