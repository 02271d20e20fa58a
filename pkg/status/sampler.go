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
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/usb-ip-display/pkg/config"
	"github.com/ZaparooProject/usb-ip-display/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

type SamplerOptions struct {
	Addresses AddressSource
	// Managers are service-manager backends tried in order. The first one
	// that answers for any service name is authoritative.
	Managers []ServiceChecker
	// Process is consulted for a running sshd after the managers.
	Process ServiceChecker
	Timeout time.Duration
}

// Sampler builds a HostStatus from live OS state. Sample never fails: every
// sub-query is bounded by Timeout and any error or panic becomes a sentinel.
type Sampler struct {
	addrs    AddressSource
	process  ServiceChecker
	managers []ServiceChecker
	timeout  time.Duration
}

func NewSampler(opts SamplerOptions) *Sampler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultSubQueryTimeout
	}
	return &Sampler{
		addrs:    opts.Addresses,
		managers: opts.Managers,
		process:  opts.Process,
		timeout:  timeout,
	}
}

// NewSystemSampler wires the production probes: interface table, systemd
// over D-Bus, systemctl, then a process scan.
func NewSystemSampler(timeout time.Duration) *Sampler {
	return NewSampler(SamplerOptions{
		Addresses: InterfaceAddressSource{},
		Managers: []ServiceChecker{
			NewSystemdChecker(),
			&SystemctlChecker{Exec: &command.RealExecutor{}},
		},
		Process: NewProcessChecker(),
		Timeout: timeout,
	})
}

func (s *Sampler) Sample(ctx context.Context) HostStatus {
	return HostStatus{
		IP:  s.ipAddress(ctx),
		SSH: s.sshState(ctx),
	}
}

// Close releases any probe holding a connection.
func (s *Sampler) Close() error {
	for _, m := range s.managers {
		if c, ok := m.(io.Closer); ok {
			if err := c.Close(); err != nil {
				return fmt.Errorf("failed to close service checker: %w", err)
			}
		}
	}
	return nil
}

func (s *Sampler) ipAddress(ctx context.Context) (ip string) {
	if s.addrs == nil {
		return NoIP
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("address lookup panicked")
			ip = NoIP
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	addrs, err := s.addrs.Addresses(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("address lookup failed")
		return NoIP
	}
	return SelectIPv4(addrs)
}

func (s *Sampler) sshState(ctx context.Context) SSHState {
	active, answered := s.managerState(ctx)
	if active {
		return SSHOn
	}

	if s.process != nil {
		running, err := s.query(ctx, s.process, sshdProcName)
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("ssh process check failed")
		case running:
			return SSHOn
		default:
			answered = true
		}
	}

	if answered {
		return SSHOff
	}
	return SSHUnknown
}

func (s *Sampler) managerState(ctx context.Context) (active, answered bool) {
	for _, m := range s.managers {
		reachable := false
		for _, name := range SSHServiceNames {
			ok, err := s.query(ctx, m, name)
			if err != nil {
				log.Debug().Err(err).Str("service", name).Msg("service check failed")
				continue
			}
			reachable = true
			if ok {
				return true, true
			}
		}
		if reachable {
			return false, true
		}
	}
	return false, false
}

func (s *Sampler) query(ctx context.Context, checker ServiceChecker, name string) (active bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			active = false
			err = fmt.Errorf("service check for %s panicked: %v", name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return checker.IsActive(ctx, name)
}
