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
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"
)

// Timing and sizing defaults
const (
	// DefaultResetLowTime is how long reset is held inactive
	DefaultResetLowTime = 100 * time.Millisecond
	// DefaultResetHoldTime is how long to wait after releasing reset
	DefaultResetHoldTime = 500 * time.Millisecond
	// DefaultReadTimeout is the per-read deadline while waiting for the target
	DefaultReadTimeout = 5 * time.Second
	// DefaultEraseTimeout is the deadline for an erase acknowledgement.
	// Mass erase of a 512 KiB part takes tens of seconds.
	DefaultEraseTimeout = 40 * time.Second
	// DefaultTraceSize is the number of wire trace entries kept per session
	DefaultTraceSize = 32
)

// Line is a digital output driving one target pin (boot-select or reset).
// Set(true) drives the line to its active level.
type Line interface {
	Set(active bool) error
}

// Config holds everything a session needs besides its transport and lines.
// There are no package-level defaults; start from DefaultConfig.
type Config struct {
	// Logger receives structured protocol logs; nil disables logging
	Logger types.Logger
	// Observer receives protocol events; nil disables them
	Observer Observer
	// Progress is called after every page of a multi-page operation
	Progress func(Progress)
	// Framing selects the command self-check byte; it must be set
	Framing Framing
	// ResetLowTime is how long the reset line is driven inactive
	ResetLowTime time.Duration
	// ResetHoldTime is how long to wait after reset before syncing
	ResetHoldTime time.Duration
	// ReadTimeout is the transport read deadline
	ReadTimeout time.Duration
	// EraseTimeout replaces ReadTimeout while waiting for an erase ack
	EraseTimeout time.Duration
	// TraceSize bounds the wire trace attached to errors
	TraceSize int
}

// DefaultConfig returns a fresh Config with default timings.
// Framing is left unset and must be chosen by the caller.
func DefaultConfig() Config {
	return Config{
		ResetLowTime:  DefaultResetLowTime,
		ResetHoldTime: DefaultResetHoldTime,
		ReadTimeout:   DefaultReadTimeout,
		EraseTimeout:  DefaultEraseTimeout,
		TraceSize:     DefaultTraceSize,
	}
}

// withDefaults fills zero timings and sizes with their defaults
func (c Config) withDefaults() Config {
	if c.ResetLowTime == 0 {
		c.ResetLowTime = DefaultResetLowTime
	}
	if c.ResetHoldTime == 0 {
		c.ResetHoldTime = DefaultResetHoldTime
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.EraseTimeout == 0 {
		c.EraseTimeout = DefaultEraseTimeout
	}
	if c.TraceSize == 0 {
		c.TraceSize = DefaultTraceSize
	}
	return c
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch c.Framing {
	case FramingComplement, FramingChecksum:
	case FramingUnset:
		return ErrFramingUnset
	default:
		return fmt.Errorf("%w: framing %s", ErrInvalidParameter, c.Framing)
	}
	if c.ResetLowTime < 0 || c.ResetHoldTime < 0 {
		return fmt.Errorf("%w: negative reset timing", ErrInvalidParameter)
	}
	if c.ReadTimeout < 0 || c.EraseTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidParameter)
	}
	if c.TraceSize < 0 {
		return fmt.Errorf("%w: negative trace size", ErrInvalidParameter)
	}
	return nil
}
