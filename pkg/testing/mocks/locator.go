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

package mocks

import "github.com/ZaparooProject/usb-ip-display/pkg/helpers/syncutil"

// ScriptedLocator reports a single device path as present or absent, as
// toggled by the test. It stands in for filesystem probing when simulating
// plug and unplug.
type ScriptedLocator struct {
	path    string
	calls   int
	mu      syncutil.Mutex
	present bool
}

func NewScriptedLocator(path string, present bool) *ScriptedLocator {
	return &ScriptedLocator{path: path, present: present}
}

func (l *ScriptedLocator) Locate() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if !l.present {
		return "", false
	}
	return l.path, true
}

func (l *ScriptedLocator) Exists(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.present && path == l.path
}

func (l *ScriptedLocator) SetPresent(present bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.present = present
}

// Calls returns how many times Locate was called.
func (l *ScriptedLocator) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
