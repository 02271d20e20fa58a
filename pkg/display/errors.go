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

package display

import (
	"errors"
	"strings"

	"go.bug.st/serial"
)

var (
	ErrNoDevice      = errors.New("no display device found")
	ErrDeviceRemoved = errors.New("display device removed")
	ErrOnceFailed    = errors.New("one-shot send failed")
)

// isDisconnectionError reports whether err means the device went away, as
// opposed to a configuration or permission problem.
func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDeviceRemoved) {
		return true
	}

	// Check for specific serial library error types first
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		case serial.PortBusy, serial.PermissionDenied, serial.InvalidSpeed,
			serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits,
			serial.InvalidTimeoutValue, serial.ErrorEnumeratingPorts, serial.FunctionNotImplemented:
			return false
		default:
			return false
		}
	}

	// Fallback to string matching for OS-level errors that aren't wrapped
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "port closed")
}
