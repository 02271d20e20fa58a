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
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/usb-ip-display/pkg/helpers/command"
	"github.com/ZaparooProject/usb-ip-display/pkg/helpers/syncutil"
	"github.com/godbus/dbus/v5"
	"github.com/shirou/gopsutil/v4/process"
)

// ServiceChecker reports whether a named service is running. An error means
// the question could not be answered, not that the service is down.
type ServiceChecker interface {
	IsActive(ctx context.Context, name string) (bool, error)
}

const (
	systemdDest      = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager   = "org.freedesktop.systemd1.Manager"
	systemdUnit      = "org.freedesktop.systemd1.Unit"
	dbusPropertyGet  = "org.freedesktop.DBus.Properties.Get"
	unitActiveState  = "ActiveState"
	unitStateActive  = "active"
	serviceUnitExt   = ".service"
	systemctlCommand = "systemctl"
)

// SystemdChecker asks systemd over the system bus for a unit's ActiveState.
type SystemdChecker struct {
	conn    *dbus.Conn
	connect func() (*dbus.Conn, error)
	mu      syncutil.Mutex
}

func NewSystemdChecker() *SystemdChecker {
	return &SystemdChecker{
		connect: func() (*dbus.Conn, error) {
			return dbus.ConnectSystemBus()
		},
	}
}

func (c *SystemdChecker) connection() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}

	conn, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *SystemdChecker) IsActive(ctx context.Context, name string) (bool, error) {
	conn, err := c.connection()
	if err != nil {
		return false, err
	}

	unit := name
	if !strings.HasSuffix(unit, serviceUnitExt) {
		unit += serviceUnitExt
	}

	var unitPath dbus.ObjectPath
	err = conn.Object(systemdDest, systemdPath).
		CallWithContext(ctx, systemdManager+".LoadUnit", 0, unit).
		Store(&unitPath)
	if err != nil {
		return false, fmt.Errorf("failed to load unit %s: %w", unit, err)
	}

	var state dbus.Variant
	err = conn.Object(systemdDest, unitPath).
		CallWithContext(ctx, dbusPropertyGet, 0, systemdUnit, unitActiveState).
		Store(&state)
	if err != nil {
		return false, fmt.Errorf("failed to read state of unit %s: %w", unit, err)
	}

	s, ok := state.Value().(string)
	if !ok {
		return false, fmt.Errorf("unexpected ActiveState type %T for unit %s", state.Value(), unit)
	}
	return s == unitStateActive, nil
}

func (c *SystemdChecker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close system bus connection: %w", err)
	}
	return nil
}

// SystemctlChecker shells out to systemctl is-active. Used when the system
// bus is not reachable but the systemctl binary is.
type SystemctlChecker struct {
	Exec command.Executor
}

func (c *SystemctlChecker) IsActive(ctx context.Context, name string) (bool, error) {
	out, err := c.Exec.Output(ctx, systemctlCommand, "is-active", name)
	state := strings.TrimSpace(string(out))

	// is-active exits non-zero for anything but "active" and still prints
	// the state, so printed output is an answer even alongside an error.
	if state != "" {
		return state == unitStateActive, nil
	}
	if err != nil {
		return false, fmt.Errorf("systemctl is-active %s failed: %w", name, err)
	}
	return false, errors.New("systemctl returned no state")
}

// ProcessChecker looks for a running process with the given name.
type ProcessChecker struct {
	list func(ctx context.Context) ([]*process.Process, error)
}

func NewProcessChecker() *ProcessChecker {
	return &ProcessChecker{list: process.ProcessesWithContext}
}

func (c *ProcessChecker) IsActive(ctx context.Context, name string) (bool, error) {
	procs, err := c.list(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		if ctx.Err() != nil {
			return false, fmt.Errorf("process scan aborted: %w", ctx.Err())
		}
		procName, err := p.NameWithContext(ctx)
		if err != nil {
			// process exited mid-scan or is not readable
			continue
		}
		if procName == name {
			return true, nil
		}
	}
	return false, nil
}
