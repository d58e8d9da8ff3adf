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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, FramingUnset, cfg.Framing)
	assert.Equal(t, DefaultResetLowTime, cfg.ResetLowTime)
	assert.Equal(t, DefaultResetHoldTime, cfg.ResetHoldTime)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultEraseTimeout, cfg.EraseTimeout)
	assert.Equal(t, DefaultTraceSize, cfg.TraceSize)
	require.ErrorIs(t, cfg.Validate(), ErrFramingUnset)
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Framing: FramingChecksum, ReadTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.ReadTimeout)
	assert.Equal(t, DefaultEraseTimeout, cfg.EraseTimeout)
	assert.Equal(t, DefaultResetLowTime, cfg.ResetLowTime)
	assert.Equal(t, DefaultTraceSize, cfg.TraceSize)
	assert.Equal(t, FramingChecksum, cfg.Framing)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		modify  func(*Config)
		name    string
	}{
		{name: "valid complement", modify: func(c *Config) { c.Framing = FramingComplement }},
		{name: "valid checksum", modify: func(c *Config) { c.Framing = FramingChecksum }},
		{name: "unset framing", modify: func(*Config) {}, wantErr: ErrFramingUnset},
		{name: "unknown framing", modify: func(c *Config) { c.Framing = Framing(5) }, wantErr: ErrInvalidParameter},
		{
			name: "negative reset",
			modify: func(c *Config) {
				c.Framing = FramingComplement
				c.ResetLowTime = -time.Millisecond
			},
			wantErr: ErrInvalidParameter,
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Framing = FramingComplement
				c.EraseTimeout = -time.Second
			},
			wantErr: ErrInvalidParameter,
		},
		{
			name: "negative trace size",
			modify: func(c *Config) {
				c.Framing = FramingComplement
				c.TraceSize = -1
			},
			wantErr: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
