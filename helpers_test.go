// go-stm32boot
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-stm32boot.
//
// go-stm32boot is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-stm32boot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-stm32boot; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package stm32boot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-stm32boot/internal/testing"
)

// simTransport adapts the virtual bootloader to Transport
type simTransport struct {
	testutil.Conn
}

func (simTransport) Type() TransportType {
	return TransportMock
}

// testConfig returns a Config with timings short enough for unit tests
func testConfig(framing Framing) Config {
	cfg := DefaultConfig()
	cfg.Framing = framing
	cfg.ResetLowTime = time.Microsecond
	cfg.ResetHoldTime = time.Microsecond
	cfg.ReadTimeout = time.Millisecond
	cfg.EraseTimeout = time.Millisecond
	return cfg
}

type testTarget struct {
	sim       *testutil.VirtualBootloader
	boot      *testutil.FakeLine
	reset     *testutil.FakeLine
	lines     *testutil.LineLog
	transport simTransport
}

func newTestTarget(t *testing.T, framing Framing) *testTarget {
	t.Helper()
	sim := testutil.NewVirtualBootloader(testutil.Framing(framing))
	lines := &testutil.LineLog{}
	boot, reset := testutil.NewTargetLines(sim, lines)
	return &testTarget{
		sim:       sim,
		boot:      boot,
		reset:     reset,
		lines:     lines,
		transport: simTransport{Conn: sim},
	}
}

// jittery routes target replies through a fragmenting connection
func (tt *testTarget) jittery(seed uint64) {
	tt.transport = simTransport{Conn: testutil.NewJitteryConn(tt.sim, testutil.JitterConfig{MaxChunk: 5, Seed: seed})}
}

func (tt *testTarget) open(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), tt.transport, tt.boot, tt.reset, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestBootloader returns an engine over a target that already saw 0x7F
func newTestBootloader(t *testing.T, framing Framing) (*Bootloader, *testutil.VirtualBootloader) {
	t.Helper()
	tt := newTestTarget(t, framing)
	cfg := testConfig(framing)
	link := NewLink(tt.transport, cfg)
	require.NoError(t, link.WriteByte(SyncByte))
	require.NoError(t, link.AwaitAck("sync"))
	tt.sim.ClearReceived()

	bl, err := NewBootloader(link, cfg)
	require.NoError(t, err)
	return bl, tt.sim
}

// scriptTransport replays canned replies and records writes
type scriptTransport struct {
	writeErr   error
	readErr    error
	rx         []byte
	written    []byte
	timeouts   []time.Duration
	writeLimit int
	mu         sync.Mutex
	flushedIn  bool
	flushedOut bool
}

func (s *scriptTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	n := len(p)
	if s.writeLimit > 0 && n > s.writeLimit {
		n = s.writeLimit
	}
	s.written = append(s.written, p[:n]...)
	return n, nil
}

func (s *scriptTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	n := copy(p, s.rx)
	s.rx = s.rx[n:]
	return n, nil
}

func (s *scriptTransport) FlushInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushedIn = true
	return nil
}

func (s *scriptTransport) FlushOutput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushedOut = true
	return nil
}

func (s *scriptTransport) SetTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, timeout)
	return nil
}

func (*scriptTransport) Close() error { return nil }

func (*scriptTransport) Type() TransportType { return TransportMock }

func (*scriptTransport) Port() string { return "/dev/ttyTEST" }

// recordingObserver captures Observer calls
type recordingObserver struct {
	commands []Command
	acks     []string
	ackErrs  []error
	pages    []string
	finished []error
	ids      []string
	mu       sync.Mutex
}

func (o *recordingObserver) CommandSent(cmd Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, cmd)
}

func (o *recordingObserver) AckReceived(context string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acks = append(o.acks, context)
	o.ackErrs = append(o.ackErrs, err)
}

func (o *recordingObserver) PageTransferred(dir Direction, addr uint32, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages = append(o.pages, fmtPage(dir, addr, n))
}

func (o *recordingObserver) SessionFinished(id string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
	o.finished = append(o.finished, err)
}

func fmtPage(dir Direction, addr uint32, n int) string {
	return fmt.Sprintf("%s@0x%08X+%d", dir, addr, n)
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/256)
	}
	return data
}
