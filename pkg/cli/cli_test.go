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

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZaparooProject/usb-ip-display/pkg/config"
	"github.com/ZaparooProject/usb-ip-display/pkg/devices"
	"github.com/ZaparooProject/usb-ip-display/pkg/display"
	"github.com/ZaparooProject/usb-ip-display/pkg/status"
	"github.com/ZaparooProject/usb-ip-display/pkg/testing/mocks"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type sampleFunc func(ctx context.Context) status.HostStatus

func (f sampleFunc) Sample(ctx context.Context) status.HostStatus {
	return f(ctx)
}

type fakeWatcher struct {
	events chan struct{}
	closed bool
}

func (w *fakeWatcher) Events() <-chan struct{} { return w.events }

func (w *fakeWatcher) Close() error {
	w.closed = true
	return nil
}

type testApp struct {
	*App
	locator *mocks.ScriptedLocator
	port    *mocks.MockSerialPort
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	cfg     *config.Values
	opened  int
}

func newTestApp(t *testing.T, present bool) *testApp {
	t.Helper()

	cfg := config.Defaults()
	cfg.TempDir = t.TempDir()
	cfg.SearchBackoff = time.Millisecond
	cfg.SettleDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.RepeatDelay = time.Millisecond
	cfg.IOTimeout = 10 * time.Millisecond

	ta := &testApp{
		locator: mocks.NewScriptedLocator("/dev/ttyACM0", present),
		port:    mocks.NewMockSerialPort(),
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
		cfg:     &cfg,
	}
	ta.App = &App{
		Out: ta.out,
		Err: ta.errOut,
		LoadConfig: func() (*config.Values, error) {
			c := *ta.cfg
			return &c, nil
		},
		InitLogging: func(*config.Values) error { return nil },
		NewSampler: func(*config.Values) display.Sampler {
			return sampleFunc(func(context.Context) status.HostStatus {
				return status.HostStatus{IP: "192.168.1.42", SSH: status.SSHOn}
			})
		},
		NewLocator: func() devices.Locator { return ta.locator },
		NewWatcher: func() (Watcher, error) {
			return nil, errors.New("inotify unavailable")
		},
		Ports: func(string, *serial.Mode) (display.Port, error) {
			ta.opened++
			return ta.port, nil
		},
	}
	return ta
}

func TestTestMode(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)

	code := ta.Execute(context.Background(), []string{"--test"})
	require.Equal(t, 0, code, ta.errOut.String())

	assert.Equal(t, "Test Mode:\n"+
		"  IP: 192.168.1.42\n"+
		"  SSH: ON\n"+
		"  Port: /dev/ttyACM0\n"+
		"  Frame: 192.168.1.42|SSH: ON\n", ta.out.String())
	assert.Zero(t, ta.opened, "test mode must not open the port")
}

func TestTestMode_NoDevice(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, false)

	code := ta.Execute(context.Background(), []string{"--test"})
	require.Equal(t, 0, code)
	assert.Contains(t, ta.out.String(), "  Port: None\n")
}

func TestOnceMode(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)

	code := ta.Execute(context.Background(), []string{"--once"})
	require.Equal(t, 0, code, ta.errOut.String())

	assert.Equal(t, 1, ta.opened)
	writes := ta.port.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "192.168.1.42|SSH: ON\n", string(writes[0]))
	assert.True(t, ta.port.IsClosed())
}

func TestOnceMode_NoDeviceExitsNonZero(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, false)

	code := ta.Execute(context.Background(), []string{"--once"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.errOut.String(), "one-shot send failed")
	assert.Equal(t, config.DefaultOnceRetries, ta.locator.Calls())
	assert.Zero(t, ta.opened)
}

func TestMonitorMode_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)
	watcher := &fakeWatcher{events: make(chan struct{})}
	ta.NewWatcher = func() (Watcher, error) { return watcher, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		done <- ta.Execute(ctx, nil)
	}()

	require.Eventually(t, func() bool { return ta.port.WriteCount() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.True(t, ta.port.IsClosed())
	assert.True(t, watcher.closed)
}

func TestMonitorMode_WithoutWatcher(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		done <- ta.Execute(ctx, nil)
	}()

	require.Eventually(t, func() bool { return ta.port.WriteCount() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.Equal(t, 0, <-done)
}

func TestFlagErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr string
		args    []string
	}{
		{name: "once and test", args: []string{"--once", "--test"}, wantErr: "none of the others can be"},
		{name: "positional argument", args: []string{"extra"}, wantErr: "unknown command"},
		{name: "unknown flag", args: []string{"--loop"}, wantErr: "unknown flag"},
		{name: "bad log level", args: []string{"--test", "--log-level", "verbose"}, wantErr: "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ta := newTestApp(t, true)
			code := ta.Execute(context.Background(), tt.args)
			assert.Equal(t, 1, code)
			assert.Contains(t, ta.errOut.String(), tt.wantErr)
			assert.Zero(t, ta.opened)
		})
	}
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)
	var level string
	ta.InitLogging = func(cfg *config.Values) error {
		level = cfg.LogLevel
		return nil
	}

	require.Equal(t, 0, ta.Execute(context.Background(), []string{"--test", "--log-level", "DEBUG"}))
	assert.Equal(t, "debug", level)
}

func TestConfigLoadError(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)
	ta.LoadConfig = func() (*config.Values, error) {
		return nil, config.ErrInvalidConfig
	}

	assert.Equal(t, 1, ta.Execute(context.Background(), []string{"--test"}))
	assert.Contains(t, ta.errOut.String(), "invalid configuration")
}

func TestLoggingInitError(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)
	ta.InitLogging = func(*config.Values) error {
		return os.ErrPermission
	}

	assert.Equal(t, 1, ta.Execute(context.Background(), []string{"--once"}))
	assert.Contains(t, ta.errOut.String(), "failed to initialize logging")
	assert.Zero(t, ta.opened)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)
	ta.NewSampler = func(*config.Values) display.Sampler {
		panic("probe exploded")
	}

	assert.Equal(t, 1, ta.Execute(context.Background(), []string{"--test"}))
	assert.Contains(t, ta.errOut.String(), "unexpected failure")
}

func TestVersionFlag(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, true)

	require.Equal(t, 0, ta.Execute(context.Background(), []string{"--version"}))
	assert.Equal(t, "usb-ip-display v"+config.AppVersion+"\n", ta.out.String())
}

//nolint:paralleltest // replaces the global logger
func TestInitLogging(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
	})

	cfg := config.Defaults()
	cfg.TempDir = t.TempDir()
	cfg.LogLevel = "error"

	require.NoError(t, initLogging(&cfg))
	log.Error().Msg("logging initialized")

	_, err := os.Stat(filepath.Join(cfg.TempDir, config.LogFile))
	require.NoError(t, err)
}
