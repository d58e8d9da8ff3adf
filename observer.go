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

import "time"

// Direction of a page transfer
type Direction string

const (
	// DirectionWrite is host to target
	DirectionWrite Direction = "write"
	// DirectionRead is target to host
	DirectionRead Direction = "read"
)

// Operation names reported in Progress
const (
	OpErase  = "erase"
	OpWrite  = "write"
	OpRead   = "read"
	OpVerify = "verify"
)

// Progress is reported after every page of a multi-page operation
type Progress struct {
	Op      string
	Done    int
	Total   int
	Address uint32
}

// Observer receives protocol events. The metrics package provides a
// Prometheus implementation. Methods are called synchronously from the
// session's goroutine and must not block.
type Observer interface {
	// CommandSent is called before a command frame is written
	CommandSent(cmd Command)
	// AckReceived is called for every ack point; err is nil for ACK
	AckReceived(context string, err error)
	// PageTransferred is called after a page transaction completes
	PageTransferred(dir Direction, addr uint32, n int)
	// SessionFinished is called once, when the session is released
	SessionFinished(id string, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CommandSent(Command) {}
func (nopObserver) AckReceived(string, error) {}
func (nopObserver) PageTransferred(Direction, uint32, int) {}
func (nopObserver) SessionFinished(string, error, time.Duration) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
