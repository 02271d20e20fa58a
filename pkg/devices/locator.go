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

// Package devices finds the serial display among the host's device nodes.
package devices

import (
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.bug.st/serial/enumerator"
)

// RaspberryPiVID is the USB vendor ID of the Pico-based display.
const RaspberryPiVID = "2e8a"

// DefaultPaths are the conventional nodes a CDC-ACM or USB-serial display
// shows up as, in priority order.
var DefaultPaths = []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0"}

// DefaultPattern is the fallback glob for serial-class device nodes.
const DefaultPattern = "/dev/ttyACM*"

// Locator finds the display and answers whether a bound path is still
// present. Implementations must be cheap and free of side effects.
type Locator interface {
	Locate() (string, bool)
	Exists(path string) bool
}

// PortLister enumerates serial ports with USB details.
type PortLister func() ([]*enumerator.PortDetails, error)

type PathLocator struct {
	fs        afero.Fs
	listPorts PortLister
	pattern   string
	vendorID  string
	paths     []string
}

type Option func(*PathLocator)

func WithFs(fs afero.Fs) Option {
	return func(l *PathLocator) { l.fs = fs }
}

// WithPortLister replaces the platform port enumeration. A nil lister
// disables that step.
func WithPortLister(fn PortLister) Option {
	return func(l *PathLocator) { l.listPorts = fn }
}

func WithPaths(paths ...string) Option {
	return func(l *PathLocator) { l.paths = paths }
}

func WithPattern(pattern string) Option {
	return func(l *PathLocator) { l.pattern = pattern }
}

func NewPathLocator(opts ...Option) *PathLocator {
	l := &PathLocator{
		fs:        afero.NewOsFs(),
		listPorts: enumerator.GetDetailedPortsList,
		paths:     DefaultPaths,
		pattern:   DefaultPattern,
		vendorID:  RaspberryPiVID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the first display candidate: a conventional path, then an
// enumerated port (vendor match first), then a glob match.
func (l *PathLocator) Locate() (string, bool) {
	for _, p := range l.paths {
		if l.Exists(p) {
			return p, true
		}
	}

	if p, ok := l.enumerated(); ok {
		return p, true
	}

	if l.pattern == "" {
		return "", false
	}
	matches, err := afero.Glob(l.fs, l.pattern)
	if err != nil {
		log.Debug().Err(err).Str("pattern", l.pattern).Msg("device glob failed")
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}
	slices.Sort(matches)
	return matches[0], true
}

func (l *PathLocator) Exists(path string) bool {
	ok, err := afero.Exists(l.fs, path)
	return err == nil && ok
}

func (l *PathLocator) enumerated() (string, bool) {
	if l.listPorts == nil {
		return "", false
	}

	ports, err := l.listPorts()
	if err != nil {
		log.Debug().Err(err).Msg("serial port enumeration failed")
		return "", false
	}

	for _, p := range ports {
		if p != nil && p.IsUSB && strings.EqualFold(p.VID, l.vendorID) {
			return p.Name, true
		}
	}
	for _, p := range ports {
		if p != nil && (strings.Contains(p.Name, "ACM") || strings.Contains(p.Name, "USB")) {
			return p.Name, true
		}
	}
	return "", false
}
