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

package main

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-stm32boot"
	"github.com/ZaparooProject/go-stm32boot/config"
	"github.com/ZaparooProject/go-stm32boot/line"
	"github.com/ZaparooProject/go-stm32boot/transport/uart"
)

// target is everything one session attempt needs from the host
type target struct {
	transport stm32boot.Transport
	boot      stm32boot.Line
	reset     stm32boot.Line
}

// Close closes the transport. The lines hold no resources.
func (t *target) Close() error {
	if t.transport == nil {
		return nil
	}
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// targetOpener builds a target from resolved settings.
type targetOpener func(settings config.Settings) (*target, error)

var errNoPort = errors.New("no serial port configured (use --port or serial.port)")

// openHardware opens the configured GPIO lines and serial port.
func openHardware(settings config.Settings) (*target, error) {
	if settings.UART.Port == "" {
		return nil, errNoPort
	}
	boot, err := line.Open(settings.LineDriver, settings.BootPin, settings.BootActiveLow)
	if err != nil {
		return nil, fmt.Errorf("boot line: %w", err)
	}
	reset, err := line.Open(settings.LineDriver, settings.ResetPin, settings.ResetActiveLow)
	if err != nil {
		return nil, fmt.Errorf("reset line: %w", err)
	}
	transport, err := uart.New(settings.UART)
	if err != nil {
		return nil, err
	}
	return &target{transport: transport, boot: boot, reset: reset}, nil
}
