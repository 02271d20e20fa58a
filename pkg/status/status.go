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

// Package status samples the host state shown on the display: the primary
// IPv4 address and whether the SSH daemon is running.
package status

// Sentinel values shown when a live value cannot be determined.
const (
	NoIP         = "No IP"
	SSHLabelOn   = "SSH: ON"
	SSHLabelOff  = "SSH: OFF"
	SSHLabelUnk  = "SSH: ???"
	sshdProcName = "sshd"
)

// SSHServiceNames are the systemd service names tried in order.
var SSHServiceNames = []string{"ssh", "sshd", "openssh-server"}

type SSHState int

const (
	// SSHUnknown means every check failed. It is preferred over SSHOff so
	// a broken probe never claims the daemon is down.
	SSHUnknown SSHState = iota
	SSHOff
	SSHOn
)

func (s SSHState) String() string {
	switch s {
	case SSHOn:
		return SSHLabelOn
	case SSHOff:
		return SSHLabelOff
	case SSHUnknown:
		return SSHLabelUnk
	default:
		return SSHLabelUnk
	}
}

// HostStatus is one sample of host state. It is rebuilt on every send.
type HostStatus struct {
	IP  string
	SSH SSHState
}
