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

// Package line drives the target's boot-select and reset pins.
//
// Two backends exist: periph.io GPIO for boards with a registered GPIO
// driver, and the per-pin control file the sunxi gpio_sw kernel driver
// exposes under /sys/class/gpio_sw.
package line

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-stm32boot"
)

// Driver names accepted by Open
const (
	DriverGPIO  = "gpio"
	DriverSysfs = "sysfs"
)

// SunxiRoot is where the gpio_sw driver exposes its pins
const SunxiRoot = "/sys/class/gpio_sw"

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name
	ErrUnknownDriver = errors.New("unknown line driver")
	// ErrPinNotFound is returned when a named pin does not exist
	ErrPinNotFound = errors.New("pin not found")
)

// SunxiPath returns the control file of a gpio_sw pin, e.g. PA7
func SunxiPath(pin string) string {
	return filepath.Join(SunxiRoot, pin, "data")
}

// Open returns a line for pin using driver. For the sysfs driver, pin is
// either a gpio_sw pin name or an absolute path to a control file.
func Open(driver, pin string, activeLow bool) (stm32boot.Line, error) {
	if pin == "" {
		return nil, fmt.Errorf("%w: empty pin name", stm32boot.ErrInvalidParameter)
	}
	switch strings.ToLower(driver) {
	case DriverGPIO:
		return NewGPIO(pin, activeLow)
	case DriverSysfs, "":
		path := pin
		if !filepath.IsAbs(pin) {
			path = SunxiPath(pin)
		}
		return NewFile(path, activeLow)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// level maps a logical state to the electrical one
func level(active, activeLow bool) bool {
	return active != activeLow
}
