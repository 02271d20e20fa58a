// USB IP Display
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of USB IP Display.
//
// USB IP Display is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// USB IP Display is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with USB IP Display.  If not, see <http://www.gnu.org/licenses/>.

package status

import (
	"context"
	"fmt"
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// AddressSource enumerates the host's assigned addresses in interface order.
// Entries may be bare IPs or CIDR strings.
type AddressSource interface {
	Addresses(ctx context.Context) ([]string, error)
}

// InterfaceAddressSource reads addresses from the kernel's interface table.
type InterfaceAddressSource struct{}

func (InterfaceAddressSource) Addresses(ctx context.Context) ([]string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	var addrs []string
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			addrs = append(addrs, addr.Addr)
		}
	}
	return addrs, nil
}

// SelectIPv4 picks the address to display. IPv4 only; the first address
// that is neither loopback (127/8) nor link-local (169.254/16) wins,
// otherwise the first IPv4 of any kind, otherwise NoIP.
func SelectIPv4(addrs []string) string {
	fallback := ""
	for _, raw := range addrs {
		ip := parseIPv4(raw)
		if ip == nil {
			continue
		}
		if fallback == "" {
			fallback = ip.String()
		}
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String()
	}
	if fallback != "" {
		return fallback
	}
	return NoIP
}

func parseIPv4(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var ip net.IP
	if strings.Contains(raw, "/") {
		parsed, _, err := net.ParseCIDR(raw)
		if err != nil {
			return nil
		}
		ip = parsed
	} else {
		ip = net.ParseIP(raw)
	}

	// IPv4-mapped IPv6 forms still contain a colon and are skipped.
	if ip == nil || strings.Contains(raw, ":") {
		return nil
	}
	return ip.To4()
}
