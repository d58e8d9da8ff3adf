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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/ZaparooProject/go-stm32boot"
)

func TestSunxiPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/sys/class/gpio_sw/PA7/data", SunxiPath("PA7"))
}

func TestGPIO_Set(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		active    bool
		activeLow bool
		want      gpio.Level
	}{
		{name: "active high asserted", active: true, want: gpio.High},
		{name: "active high released", active: false, want: gpio.Low},
		{name: "active low asserted", active: true, activeLow: true, want: gpio.Low},
		{name: "active low released", active: false, activeLow: true, want: gpio.High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pin := &gpiotest.Pin{N: "TEST", L: !tt.want}
			g := newGPIO(pin, "TEST", tt.activeLow)

			require.NoError(t, g.Set(tt.active))
			assert.Equal(t, tt.want, pin.Read())
			assert.Equal(t, "TEST", g.String())
		})
	}
}

func TestLookupGPIO(t *testing.T) {
	t.Parallel()

	pin := &gpiotest.Pin{N: "STM32BOOT_TEST_RESET", Num: 9001}
	require.NoError(t, gpioreg.Register(pin))

	g, err := lookupGPIO("STM32BOOT_TEST_RESET", false)
	require.NoError(t, err)
	require.NoError(t, g.Set(true))
	assert.Equal(t, gpio.High, pin.Read())

	_, err = lookupGPIO("STM32BOOT_NO_SUCH_PIN", false)
	require.ErrorIs(t, err, ErrPinNotFound)
}

func TestFile_Set(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		want      string
		active    bool
		activeLow bool
	}{
		{name: "active high asserted", active: true, want: "1"},
		{name: "active high released", active: false, want: "0"},
		{name: "active low asserted", active: true, activeLow: true, want: "0"},
		{name: "active low released", active: false, activeLow: true, want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "data")
			require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o600))

			f, err := NewFile(path, tt.activeLow)
			require.NoError(t, err)
			require.NoError(t, f.Set(tt.active))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := NewFile(filepath.Join(t.TempDir(), "nope"), false)
	require.ErrorIs(t, err, ErrPinNotFound)

	_, err = NewFile(t.TempDir(), false)
	require.ErrorIs(t, err, ErrPinNotFound)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	l, err := Open("sysfs", path, false)
	require.NoError(t, err)
	require.NoError(t, l.Set(true))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	_, err = Open("sysfs", "PZ99", false)
	require.ErrorIs(t, err, ErrPinNotFound)

	_, err = Open("bitbang", "PA7", false)
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open("gpio", "", false)
	require.ErrorIs(t, err, stm32boot.ErrInvalidParameter)
}
