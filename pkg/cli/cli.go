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

// Package cli is the usb-ip-display command line: mode selection, config,
// logging and signal handling around a display.Session.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ZaparooProject/usb-ip-display/internal/telemetry"
	"github.com/ZaparooProject/usb-ip-display/pkg/config"
	"github.com/ZaparooProject/usb-ip-display/pkg/devices"
	"github.com/ZaparooProject/usb-ip-display/pkg/display"
	"github.com/ZaparooProject/usb-ip-display/pkg/frame"
	"github.com/ZaparooProject/usb-ip-display/pkg/helpers"
	"github.com/ZaparooProject/usb-ip-display/pkg/status"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errUnexpectedFailure = errors.New("unexpected failure")

// Watcher delivers a signal whenever a serial device node appears.
type Watcher interface {
	Events() <-chan struct{}
	Close() error
}

// App holds everything the command touches outside the process, so tests
// can swap in fakes.
type App struct {
	Out         io.Writer
	Err         io.Writer
	LoadConfig  func() (*config.Values, error)
	InitLogging func(cfg *config.Values) error
	NewSampler  func(cfg *config.Values) display.Sampler
	NewLocator  func() devices.Locator
	NewWatcher  func() (Watcher, error)
	Ports       display.PortFactory
}

type options struct {
	logLevel     string
	once         bool
	test         bool
	reportErrors bool
}

func NewApp() *App {
	return &App{
		Out:         os.Stdout,
		Err:         os.Stderr,
		LoadConfig:  config.Load,
		InitLogging: initLogging,
		NewSampler: func(cfg *config.Values) display.Sampler {
			return status.NewSystemSampler(cfg.SubQueryTimeout)
		},
		NewLocator: func() devices.Locator {
			return devices.NewPathLocator()
		},
		NewWatcher: newDeviceWatcher,
		Ports:      display.DefaultPortFactory,
	}
}

// Execute runs the command with the process arguments and returns the exit
// code. SIGINT and SIGTERM stop the monitor cleanly.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	return NewApp().Execute(ctx, os.Args[1:])
}

func (a *App) Execute(ctx context.Context, args []string) int {
	cmd := a.NewRootCommand()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(a.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Show this host's IP address and SSH status on a USB serial display",
		Long: `Find a USB serial status display and keep it updated with the host's
IP address and SSH server state.

With no flags the display is monitored forever: frames are resent every 15
seconds and the device is reacquired whenever it is unplugged.

Environment variables prefixed with USB_IP_DISPLAY_ override the defaults,
for example USB_IP_DISPLAY_BAUD_RATE=9600.

Examples:
  usb-ip-display
  usb-ip-display --once
  usb-ip-display --test`,
		Version:       config.AppVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), opts)
		},
	}

	cmd.SetOut(a.Out)
	cmd.SetErr(a.Err)
	cmd.SetVersionTemplate(config.AppName + " v{{.Version}}\n")

	flags := cmd.Flags()
	flags.BoolVar(&opts.once, "once", false, "send a single frame and exit")
	flags.BoolVar(&opts.test, "test", false, "print the sampled status and device without sending")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	flags.BoolVar(&opts.reportErrors, "report-errors", false,
		"send error reports to Sentry (requires USB_IP_DISPLAY_SENTRY_DSN)")
	cmd.MarkFlagsMutuallyExclusive("once", "test")

	return cmd
}

func (a *App) run(ctx context.Context, opts *options) (err error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = strings.ToLower(opts.logLevel)
	}
	if opts.reportErrors {
		cfg.ReportErrors = true
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := a.InitLogging(cfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := telemetry.Init(cfg); err != nil {
		log.Warn().Err(err).Msg("error reporting unavailable")
	}
	defer telemetry.Close()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("unexpected failure")
			err = fmt.Errorf("%w: %v", errUnexpectedFailure, r)
		}
	}()

	log.Info().Str("version", config.AppVersion).Msg("usb-ip-display starting")

	sampler := a.NewSampler(cfg)
	if closer, ok := sampler.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Debug().Err(err).Msg("error closing sampler")
			}
		}()
	}
	locator := a.NewLocator()

	switch {
	case opts.test:
		return a.runTest(ctx, sampler, locator)
	case opts.once:
		return a.runOnce(ctx, cfg, sampler, locator)
	default:
		return a.runMonitor(ctx, cfg, sampler, locator)
	}
}

func (a *App) runTest(ctx context.Context, sampler display.Sampler, locator devices.Locator) error {
	st := sampler.Sample(ctx)

	port, ok := locator.Locate()
	if !ok {
		port = "None"
	}

	_, _ = fmt.Fprintln(a.Out, "Test Mode:")
	_, _ = fmt.Fprintf(a.Out, "  IP: %s\n", st.IP)
	_, _ = fmt.Fprintf(a.Out, "  %s\n", st.SSH)
	_, _ = fmt.Fprintf(a.Out, "  Port: %s\n", port)
	_, _ = fmt.Fprintf(a.Out, "  Frame: %s\n", frame.Encode(st))
	return nil
}

func (a *App) runOnce(
	ctx context.Context,
	cfg *config.Values,
	sampler display.Sampler,
	locator devices.Locator,
) error {
	session := display.NewSession(cfg, locator, sampler, display.WithPortFactory(a.Ports))
	if err := session.SendOnce(ctx); err != nil {
		return fmt.Errorf("failed to update display: %w", err)
	}
	return nil
}

func (a *App) runMonitor(
	ctx context.Context,
	cfg *config.Values,
	sampler display.Sampler,
	locator devices.Locator,
) error {
	opts := []display.Option{display.WithPortFactory(a.Ports)}

	watcher, err := a.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("device watcher unavailable, polling for devices")
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Debug().Err(err).Msg("error closing device watcher")
			}
		}()
		opts = append(opts, display.WithWakeups(watcher.Events()))
	}

	return display.NewSession(cfg, locator, sampler, opts...).Run(ctx)
}

func newDeviceWatcher() (Watcher, error) {
	w, err := devices.NewWatcher(devices.DefaultWatchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", devices.DefaultWatchDir, err)
	}
	return w, nil
}

// initLogging logs to the console and the system log, alongside the
// rotating file. A missing system log is not fatal.
func initLogging(cfg *config.Values) error {
	writers := []io.Writer{helpers.ConsoleWriter(os.Stderr)}

	syslog, syslogErr := helpers.SyslogWriter(config.SyslogTag)
	if syslogErr == nil {
		writers = append(writers, syslog)
	}

	if err := helpers.InitLogging(cfg, writers); err != nil {
		return fmt.Errorf("failed to set up log writers: %w", err)
	}

	if syslogErr != nil {
		log.Debug().Err(syslogErr).Msg("system log unavailable")
	}
	return nil
}
