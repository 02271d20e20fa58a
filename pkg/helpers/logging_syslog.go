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

//go:build !windows && !plan9

package helpers

import (
	"fmt"
	"io"
	"log/syslog"

	"github.com/rs/zerolog"
)

// SyslogWriter returns a level-aware writer to the host's system log, with
// every line tagged so journald/rsyslog can filter on it.
func SyslogWriter(tag string) (io.Writer, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system log: %w", err)
	}
	return zerolog.SyslogLevelWriter(w), nil
}
