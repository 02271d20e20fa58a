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

import (
	"errors"
	"time"

	"github.com/ZaparooProject/usb-ip-display/pkg/helpers/syncutil"
)

var ErrMockPortClosed = errors.New("port closed")

// MockSerialPort is an in-memory serial port. Writes are recorded, reads
// drain data queued with QueueRead and otherwise behave like a read timeout.
type MockSerialPort struct {
	WriteError error
	ReadError  error
	CloseError error
	TimeoutErr error
	ResetError error
	DrainError error
	readData   []byte
	writes     [][]byte
	resets     int
	drains     int
	mu         syncutil.Mutex
	closed     bool
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrMockPortClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.mu.Unlock()
		return 0, err
	}
	if len(m.readData) == 0 {
		m.mu.Unlock()
		// Simulate a read timeout
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, m.readData)
	m.readData = m.readData[n:]
	m.mu.Unlock()
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrMockPortClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

func (m *MockSerialPort) SetReadTimeout(time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TimeoutErr
}

func (m *MockSerialPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return m.ResetError
}

func (m *MockSerialPort) ResetOutputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return m.ResetError
}

func (m *MockSerialPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains++
	return m.DrainError
}

// QueueRead makes data available to subsequent reads.
func (m *MockSerialPort) QueueRead(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readData = append(m.readData, data...)
}

// SetWriteError changes the write error while the port is in use.
func (m *MockSerialPort) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteError = err
}

// Writes returns a copy of everything written so far, one entry per call.
func (m *MockSerialPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *MockSerialPort) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *MockSerialPort) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

func (m *MockSerialPort) Drains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drains
}

func (m *MockSerialPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
