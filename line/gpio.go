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

package line

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var hostInit = sync.OnceValue(func() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return nil
})

// GPIO is a line backed by a periph.io output pin
type GPIO struct {
	pin       gpio.PinOut
	name      string
	mu        sync.Mutex
	activeLow bool
}

// NewGPIO looks up a pin by name in the periph.io registry, e.g. "GPIO17"
// on a Raspberry Pi or "PA7" on Allwinner boards.
func NewGPIO(name string, activeLow bool) (*GPIO, error) {
	if err := hostInit(); err != nil {
		return nil, err
	}
	return lookupGPIO(name, activeLow)
}

func lookupGPIO(name string, activeLow bool) (*GPIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return newGPIO(pin, name, activeLow), nil
}

func newGPIO(pin gpio.PinOut, name string, activeLow bool) *GPIO {
	return &GPIO{pin: pin, name: name, activeLow: activeLow}
}

// Set drives the pin to its active or inactive level
func (g *GPIO) Set(active bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := gpio.Low
	if level(active, g.activeLow) {
		l = gpio.High
	}
	if err := g.pin.Out(l); err != nil {
		return fmt.Errorf("gpio %s: %w", g.name, err)
	}
	return nil
}

// String returns the pin name
func (g *GPIO) String() string {
	return g.name
}
