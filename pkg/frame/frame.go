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

// Package frame encodes host status into the display's two-line wire format:
//
//	<line1>|<line2>\n
//
// Each line is at most Width characters, matching the 16x2 character LCD.
package frame

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ZaparooProject/usb-ip-display/pkg/config"
	"github.com/ZaparooProject/usb-ip-display/pkg/status"
)

const (
	Width      = config.DisplayColumns
	Separator  = "|"
	Terminator = "\n"
	// MaxWireLen is the longest possible encoded line in bytes.
	MaxWireLen = Width*2 + len(Separator) + len(Terminator)
)

var ErrMalformed = errors.New("malformed frame")

type Frame struct {
	Line1 string
	Line2 string
}

// New builds a frame from two arbitrary strings, making them safe for the
// wire and truncating them to the display width.
func New(line1, line2 string) Frame {
	return Frame{
		Line1: Truncate(line1, Width),
		Line2: Truncate(line2, Width),
	}
}

// Encode renders a status sample as a frame: IP on the top line, SSH state
// on the bottom.
func Encode(st status.HostStatus) Frame {
	return New(st.IP, st.SSH.String())
}

// Truncate strips wire control characters and cuts s to at most width
// characters and width bytes, never splitting a UTF-8 sequence.
func Truncate(s string, width int) string {
	s = sanitize(s)
	end := 0
	for count := 0; count < width && end < len(s); count++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > width {
			break
		}
		end += size
	}
	return s[:end]
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '|', '\n', '\r':
			return ' '
		default:
			return r
		}
	}, s)
}

// String returns the frame without the line terminator.
func (f Frame) String() string {
	return f.Line1 + Separator + f.Line2
}

// Wire returns the bytes written to the serial port.
func (f Frame) Wire() []byte {
	return []byte(f.String() + Terminator)
}

// Parse splits a received line back into a frame the way the display does.
func Parse(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, Separator)
	if len(parts) != 2 {
		return Frame{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformed, len(parts))
	}
	return Frame{Line1: parts[0], Line2: parts[1]}, nil
}
