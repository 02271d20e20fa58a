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

package config

import "time"

var AppVersion = "DEVELOPMENT"

const (
	AppName   = "usb-ip-display"
	LogFile   = "usb-ip-display.log"
	SyslogTag = "usb-ip-display"
	EnvPrefix = "USB_IP_DISPLAY"
)

// Display geometry and link parameters fixed by the display firmware.
const (
	DisplayColumns  = 16
	DefaultBaudRate = 115200
)

const (
	DefaultIOTimeout       = 1 * time.Second
	DefaultSubQueryTimeout = 2 * time.Second
	DefaultSearchBackoff   = 2 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultSendInterval    = 15 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultRepeatDelay     = 100 * time.Millisecond
	DefaultRefreshInterval = 1 * time.Second
	DefaultRepeats         = 2
	DefaultOnceRetries     = 5
)
