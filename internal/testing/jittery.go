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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// Conn is the byte link the simulator exposes; it mirrors stm32boot.Transport
// without Type to avoid import cycle.
type Conn interface {
	io.ReadWriter
	FlushInput() error
	FlushOutput() error
	SetTimeout(timeout time.Duration) error
	Close() error
}

// JitterConfig configures the behavior of JitteryConn.
type JitterConfig struct {
	MaxLatency time.Duration
	MaxChunk   int
	Seed       uint64
}

// DefaultJitterConfig returns a configuration that splits replies into
// 1 to 7 byte pieces with no added latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxChunk: 7,
	}
}

// JitteryConn wraps a Conn to simulate USB-UART bridges (CH340, CP2102)
// that hand replies to the host in arbitrary fragments with variable delay.
// A read never returns zero bytes while the backend has data queued, so a
// fragmented reply is never mistaken for a read timeout.
type JitteryConn struct {
	Conn
	rng    *rand.Rand
	config JitterConfig
}

// NewJitteryConn wraps backend with fragmentation and latency simulation.
func NewJitteryConn(backend Conn, config JitterConfig) *JitteryConn {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}
	if config.MaxChunk < 1 {
		config.MaxChunk = 1
	}
	return &JitteryConn{Conn: backend, config: config, rng: rng}
}

// Read returns between one and MaxChunk bytes of the backend's reply.
func (j *JitteryConn) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}
	if len(buf) == 0 {
		return 0, nil
	}
	limit := min(len(buf), j.config.MaxChunk)
	return j.Conn.Read(buf[:1+j.rng.IntN(limit)]) //nolint:wrapcheck // Pass-through wrapper
}
