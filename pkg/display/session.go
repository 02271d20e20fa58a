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

// Package display drives the serial link to the status display: find the
// device, open it, push a status frame on a fixed cadence, and start over
// whenever the device goes away.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/usb-ip-display/pkg/config"
	"github.com/ZaparooProject/usb-ip-display/pkg/devices"
	"github.com/ZaparooProject/usb-ip-display/pkg/frame"
	"github.com/ZaparooProject/usb-ip-display/pkg/status"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// RefreshCommand is the line the display sends to ask for a new frame.
	RefreshCommand = "REFRESH"
	readChunk      = 64
	maxInbound     = 256
)

// State is the connection state reported by Session.State.
type State int32

const (
	StateSearching State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sampler produces the host status to display. It must not fail.
type Sampler interface {
	Sample(ctx context.Context) status.HostStatus
}

// Session owns the serial link to one display. Run and SendOnce must not be
// called concurrently; State is safe from any goroutine.
type Session struct {
	lastSend time.Time
	locator  devices.Locator
	sampler  Sampler
	clock    clockwork.Clock
	port     Port
	ports    PortFactory
	limiter  *rate.Limiter
	wakeups  <-chan struct{}
	cfg      *config.Values
	path     string
	inbound  []byte
	state    atomic.Int32
}

// Option configures a Session.
type Option func(*Session)

func WithPortFactory(f PortFactory) Option {
	return func(s *Session) { s.ports = f }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithWakeups cuts a device search backoff short whenever ch fires.
func WithWakeups(ch <-chan struct{}) Option {
	return func(s *Session) { s.wakeups = ch }
}

// NewSession returns a session in StateSearching using the real serial
// port factory and wall clock unless overridden by opts.
func NewSession(cfg *config.Values, locator devices.Locator, sampler Sampler, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg,
		locator: locator,
		sampler: sampler,
		ports:   DefaultPortFactory,
		clock:   clockwork.NewRealClock(),
		limiter: rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run keeps the display updated until ctx is cancelled. Device loss and I/O
// errors are logged and recovered from; Run only returns on cancellation.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Msg("display monitor started")
	defer s.closePort()

	for ctx.Err() == nil {
		s.cycle(ctx)
	}

	log.Info().Msg("display monitor stopped")
	return nil
}

// cycle runs one search, connect, serve pass. A panic anywhere in it is
// treated like an I/O failure.
func (s *Session) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.closePort()
			log.Error().Interface("panic", r).Msg("recovered from display session failure")
			s.sleep(ctx, s.cfg.SearchBackoff)
		}
	}()

	path, ok := s.search(ctx)
	if !ok {
		return
	}

	if err := s.connect(ctx, path); err != nil {
		s.closePort()
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("device", path).Msg("failed to connect to display")
			s.sleep(ctx, s.cfg.SearchBackoff)
		}
		return
	}

	s.serve(ctx)

	if ctx.Err() == nil {
		s.sleep(ctx, s.cfg.SearchBackoff)
	}
}

// SendOnce finds the display, sends a single frame and closes the port. It
// gives up after OnceRetries attempts.
func (s *Session) SendOnce(ctx context.Context) error {
	defer s.closePort()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.OnceRetries; attempt++ {
		if attempt > 1 && !s.sleep(ctx, s.cfg.SearchBackoff) {
			return fmt.Errorf("one-shot send cancelled: %w", ctx.Err())
		}

		s.setState(StateSearching)
		path, ok := s.locator.Locate()
		if !ok {
			lastErr = ErrNoDevice
			log.Debug().Int("attempt", attempt).Msg("no display device found")
			continue
		}

		if err := s.connect(ctx, path); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("device", path).Msg("failed to connect to display")
			continue
		}

		if err := s.send(ctx); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("device", path).Msg("failed to send status")
			s.closePort()
			continue
		}

		return nil
	}

	log.Error().Err(lastErr).Int("attempts", s.cfg.OnceRetries).Msg("giving up on display")
	return fmt.Errorf("%w after %d attempts: %w", ErrOnceFailed, s.cfg.OnceRetries, lastErr)
}

func (s *Session) search(ctx context.Context) (string, bool) {
	s.setState(StateSearching)

	waiting := false
	for {
		if path, ok := s.locator.Locate(); ok {
			log.Info().Str("device", path).Msg("display device found")
			return path, true
		}
		if !waiting {
			log.Info().Msg("waiting for display device")
			waiting = true
		}
		if !s.waitForDevice(ctx) {
			return "", false
		}
	}
}

func (s *Session) connect(ctx context.Context, path string) error {
	s.setState(StateConnecting)
	log.Info().Str("device", path).Msg("connecting to display")

	port, err := s.ports(path, serialMode(s.cfg.BaudRate))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	s.port = port
	s.path = path

	if err := port.SetReadTimeout(s.cfg.IOTimeout); err != nil {
		s.closePort()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// The display prints its own boot chatter; wait it out, then drop it.
	if !s.sleep(ctx, s.cfg.SettleDelay) {
		s.closePort()
		return fmt.Errorf("connect cancelled: %w", ctx.Err())
	}
	if err := port.ResetInputBuffer(); err != nil {
		s.closePort()
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		s.closePort()
		return fmt.Errorf("failed to reset output buffer: %w", err)
	}

	s.setState(StateConnected)
	log.Info().Str("device", path).Msg("display connected")
	return nil
}

// serve sends the first frame immediately, then polls until the device is
// lost or ctx is cancelled. The port is always closed on return.
func (s *Session) serve(ctx context.Context) {
	defer s.closePort()

	if err := s.send(ctx); err != nil {
		s.lost(ctx, err)
		return
	}

	for s.sleep(ctx, s.cfg.PollInterval) {
		// A write to a just-removed node can still succeed, so the path is
		// checked directly as well.
		if !s.locator.Exists(s.path) {
			s.lost(ctx, ErrDeviceRemoved)
			return
		}

		refresh, err := s.pollRefresh()
		if err != nil {
			s.lost(ctx, err)
			return
		}

		if !s.due(refresh) {
			continue
		}
		if err := s.send(ctx); err != nil {
			s.lost(ctx, err)
			return
		}
	}
}

func (s *Session) due(refresh bool) bool {
	if s.clock.Since(s.lastSend) >= s.cfg.SendInterval {
		return true
	}
	if !refresh {
		return false
	}
	if !s.limiter.AllowN(s.clock.Now(), 1) {
		log.Debug().Msg("refresh request rate limited")
		return false
	}
	log.Debug().Msg("display requested refresh")
	return true
}

func (s *Session) lost(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Warn().
		Err(err).
		Str("device", s.path).
		Bool("unplugged", isDisconnectionError(err)).
		Msg("display device disconnected")
}

// send writes one frame Repeats times. There is no acknowledgement on the
// link, so repetition is the only delivery guarantee.
func (s *Session) send(ctx context.Context) error {
	f := frame.Encode(s.sampler.Sample(ctx))
	data := f.Wire()

	for i := range s.cfg.Repeats {
		if i > 0 && !s.sleep(ctx, s.cfg.RepeatDelay) {
			return fmt.Errorf("send cancelled: %w", ctx.Err())
		}

		n, err := s.port.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
		if n != len(data) {
			return fmt.Errorf("incomplete frame write: wrote %d of %d bytes", n, len(data))
		}
		if err := s.port.Drain(); err != nil {
			return fmt.Errorf("failed to drain port: %w", err)
		}
	}

	s.lastSend = s.clock.Now()
	log.Info().Str("device", s.path).Str("frame", f.String()).Msg("sent status to display")
	return nil
}

// pollRefresh reads whatever the display has sent and reports whether a
// complete REFRESH line arrived.
func (s *Session) pollRefresh() (bool, error) {
	buf := make([]byte, readChunk)
	n, err := s.port.Read(buf)
	if err != nil {
		return false, fmt.Errorf("failed to read from display: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.inbound = append(s.inbound, buf[:n]...)

	requested := false
	for {
		i := bytes.IndexByte(s.inbound, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.inbound[:i]))
		s.inbound = s.inbound[i+1:]

		switch line {
		case RefreshCommand:
			requested = true
		case "":
		default:
			log.Debug().Str("line", line).Msg("ignoring display output")
		}
	}

	if len(s.inbound) > maxInbound {
		s.inbound = s.inbound[len(s.inbound)-maxInbound:]
	}
	return requested, nil
}

// closePort drops any open handle and returns the session to searching.
func (s *Session) closePort() {
	s.setState(StateSearching)
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil && !errors.Is(err, ErrDeviceRemoved) {
		log.Debug().Err(err).Str("device", s.path).Msg("error closing serial port")
	}
	log.Debug().Str("device", s.path).Msg("serial port closed")
	s.port = nil
	s.path = ""
	s.inbound = nil
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Session) waitForDevice(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(s.cfg.SearchBackoff):
		return true
	case <-s.wakeups:
		log.Debug().Msg("device event, retrying search")
		return true
	}
}
