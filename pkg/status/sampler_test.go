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
	"net"
	"testing"
	"time"

	"github.com/ZaparooProject/usb-ip-display/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"pgregory.net/rapid"
)

type checkerFunc func(ctx context.Context, name string) (bool, error)

func (f checkerFunc) IsActive(ctx context.Context, name string) (bool, error) {
	return f(ctx, name)
}

type addressFunc func(ctx context.Context) ([]string, error)

func (f addressFunc) Addresses(ctx context.Context) ([]string, error) {
	return f(ctx)
}

var (
	errBusDown = errors.New("dial unix /run/dbus/system_bus_socket: no such file")

	unreachable = checkerFunc(func(context.Context, string) (bool, error) {
		return false, errBusDown
	})
	panicking = checkerFunc(func(context.Context, string) (bool, error) {
		panic("boom")
	})
	blocking = checkerFunc(func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
)

func staticAddrs(addrs ...string) AddressSource {
	return addressFunc(func(context.Context) ([]string, error) {
		return addrs, nil
	})
}

func TestSample_LoopbackAndLANWithSSHActive(t *testing.T) {
	t.Parallel()

	manager := &mocks.MockServiceChecker{}
	manager.On("IsActive", mock.Anything, "ssh").Return(true, nil)

	sampler := NewSampler(SamplerOptions{
		Addresses: staticAddrs("127.0.0.1", "192.168.1.42"),
		Managers:  []ServiceChecker{manager},
	})

	got := sampler.Sample(context.Background())

	assert.Equal(t, HostStatus{IP: "192.168.1.42", SSH: SSHOn}, got)
	assert.Equal(t, "SSH: ON", got.SSH.String())
	manager.AssertNotCalled(t, "IsActive", mock.Anything, "sshd")
}

func TestSample_NoIPv4AndFailingSSHCheck(t *testing.T) {
	t.Parallel()

	sampler := NewSampler(SamplerOptions{
		Addresses: staticAddrs("::1/128", "fe80::1/64"),
		Managers:  []ServiceChecker{unreachable, panicking},
		Process:   unreachable,
	})

	got := sampler.Sample(context.Background())

	assert.Equal(t, NoIP, got.IP)
	assert.Equal(t, SSHUnknown, got.SSH)
	assert.Equal(t, "SSH: ???", got.SSH.String())
}

func TestSample_AddressQueryHasDeadline(t *testing.T) {
	t.Parallel()

	source := &mocks.MockAddressSource{}
	source.On("Addresses", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return([]string{"169.254.10.1/16", "10.20.30.40/24"}, nil).Once()

	sampler := NewSampler(SamplerOptions{Addresses: source, Timeout: time.Second})

	assert.Equal(t, "10.20.30.40", sampler.Sample(context.Background()).IP)
	source.AssertExpectations(t)
}

func TestSample_AddressErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source AddressSource
		name   string
	}{
		{
			name: "enumeration error",
			source: addressFunc(func(context.Context) ([]string, error) {
				return nil, errors.New("permission denied")
			}),
		},
		{
			name: "enumeration panic",
			source: addressFunc(func(context.Context) ([]string, error) {
				panic("nil interface table")
			}),
		},
		{
			name:   "no source",
			source: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sampler := NewSampler(SamplerOptions{Addresses: tt.source})
			assert.Equal(t, NoIP, sampler.Sample(context.Background()).IP)
		})
	}
}

func TestSample_SSHState(t *testing.T) {
	t.Parallel()

	notRunning := checkerFunc(func(context.Context, string) (bool, error) { return false, nil })
	running := checkerFunc(func(context.Context, string) (bool, error) { return true, nil })
	onlySSHD := checkerFunc(func(_ context.Context, name string) (bool, error) {
		return name == "sshd", nil
	})

	tests := []struct {
		process  ServiceChecker
		name     string
		managers []ServiceChecker
		expected SSHState
	}{
		{
			name:     "second service name active",
			managers: []ServiceChecker{onlySSHD},
			expected: SSHOn,
		},
		{
			name:     "bus down falls back to systemctl",
			managers: []ServiceChecker{unreachable, running},
			expected: SSHOn,
		},
		{
			name:     "manager says inactive and no process",
			managers: []ServiceChecker{notRunning},
			process:  notRunning,
			expected: SSHOff,
		},
		{
			name:     "manager inactive but daemon running outside systemd",
			managers: []ServiceChecker{notRunning},
			process:  running,
			expected: SSHOn,
		},
		{
			name:     "no manager, process scan finds daemon",
			managers: []ServiceChecker{unreachable, unreachable},
			process:  running,
			expected: SSHOn,
		},
		{
			name:     "no manager, process scan says not running",
			managers: []ServiceChecker{unreachable},
			process:  notRunning,
			expected: SSHOff,
		},
		{
			name:     "manager inactive, process scan fails",
			managers: []ServiceChecker{notRunning},
			process:  unreachable,
			expected: SSHOff,
		},
		{
			name:     "every check fails",
			managers: []ServiceChecker{unreachable, panicking},
			process:  panicking,
			expected: SSHUnknown,
		},
		{
			name:     "no checkers",
			expected: SSHUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sampler := NewSampler(SamplerOptions{
				Addresses: staticAddrs("10.0.0.2/8"),
				Managers:  tt.managers,
				Process:   tt.process,
			})
			assert.Equal(t, tt.expected, sampler.Sample(context.Background()).SSH)
		})
	}
}

func TestSample_FirstReachableManagerIsAuthoritative(t *testing.T) {
	t.Parallel()

	first := &mocks.MockServiceChecker{}
	first.On("IsActive", mock.Anything, mock.Anything).Return(false, nil)
	second := &mocks.MockServiceChecker{}

	sampler := NewSampler(SamplerOptions{
		Addresses: staticAddrs("10.0.0.2/8"),
		Managers:  []ServiceChecker{first, second},
	})

	assert.Equal(t, SSHOff, sampler.Sample(context.Background()).SSH)
	first.AssertNumberOfCalls(t, "IsActive", len(SSHServiceNames))
	second.AssertNotCalled(t, "IsActive", mock.Anything, mock.Anything)
}

func TestSample_SubQueriesAreBounded(t *testing.T) {
	t.Parallel()

	sampler := NewSampler(SamplerOptions{
		Addresses: addressFunc(func(ctx context.Context) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		Managers: []ServiceChecker{blocking},
		Process:  blocking,
		Timeout:  10 * time.Millisecond,
	})

	start := time.Now()
	got := sampler.Sample(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, HostStatus{IP: NoIP, SSH: SSHUnknown}, got)
}

func TestSSHStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SSH: ON", SSHOn.String())
	assert.Equal(t, "SSH: OFF", SSHOff.String())
	assert.Equal(t, "SSH: ???", SSHUnknown.String())
	assert.Equal(t, "SSH: ???", SSHState(42).String())
}

func TestPropertySampleIsTotal(t *testing.T) {
	t.Parallel()

	behaviours := []ServiceChecker{
		unreachable,
		panicking,
		checkerFunc(func(context.Context, string) (bool, error) { return true, nil }),
		checkerFunc(func(context.Context, string) (bool, error) { return false, nil }),
	}

	rapid.Check(t, func(t *rapid.T) {
		addrs := rapid.SliceOfN(rapid.OneOf(
			rapid.SampledFrom([]string{
				"127.0.0.1/8", "169.254.7.7/16", "::1/128", "fe80::1/64", "", "junk",
			}),
			rapid.Custom(func(t *rapid.T) string {
				ip := net.IPv4(
					rapid.Byte().Draw(t, "a"),
					rapid.Byte().Draw(t, "b"),
					rapid.Byte().Draw(t, "c"),
					rapid.Byte().Draw(t, "d"),
				)
				return ip.String() + "/24"
			}),
		), 0, 6).Draw(t, "addrs")

		addrErr := rapid.Bool().Draw(t, "addrErr")
		source := addressFunc(func(context.Context) ([]string, error) {
			if addrErr {
				return nil, errors.New("enumeration failed")
			}
			return addrs, nil
		})

		managers := rapid.SliceOfN(rapid.SampledFrom(behaviours), 0, 3).Draw(t, "managers")
		proc := rapid.SampledFrom(behaviours).Draw(t, "process")

		got := NewSampler(SamplerOptions{
			Addresses: source,
			Managers:  managers,
			Process:   proc,
		}).Sample(context.Background())

		if got.IP != NoIP && net.ParseIP(got.IP).To4() == nil {
			t.Fatalf("IP %q is neither a dotted quad nor the sentinel", got.IP)
		}
		if got.SSH != SSHOn && got.SSH != SSHOff && got.SSH != SSHUnknown {
			t.Fatalf("unexpected ssh state %d", got.SSH)
		}
	})
}

func TestSamplerClose(t *testing.T) {
	t.Parallel()

	sampler := NewSampler(SamplerOptions{
		Managers: []ServiceChecker{&SystemdChecker{}, &SystemctlChecker{}},
	})
	assert.NoError(t, sampler.Close())
}
