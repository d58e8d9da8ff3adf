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

	"github.com/stretchr/testify/assert"
)

func TestNewCommandSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
		want CommandSet
	}{
		{name: "empty", raw: nil, want: CommandSet{}},
		{name: "sorted", raw: []byte{0x00, 0x02, 0x11}, want: CommandSet{CmdGet, CmdGetID, CmdReadMemory}},
		{name: "unsorted", raw: []byte{0x44, 0x00, 0x31}, want: CommandSet{CmdGet, CmdWriteMemory, CmdExtendedErase}},
		{name: "duplicates", raw: []byte{0x11, 0x11, 0x00, 0x11}, want: CommandSet{CmdGet, CmdReadMemory}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewCommandSet(tt.raw))
		})
	}
}

func TestCommandSet_Has(t *testing.T) {
	t.Parallel()

	set := NewCommandSet([]byte{0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x44, 0x63, 0x73, 0x82, 0x92})
	assert.True(t, set.Has(CmdGet))
	assert.True(t, set.Has(CmdExtendedErase))
	assert.True(t, set.Has(CmdReadoutUnprotect))
	assert.False(t, set.Has(CmdErase))
	assert.False(t, CommandSet(nil).Has(CmdGet))
}

func TestCommandSet_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[0x00 0x02 0x44]", NewCommandSet([]byte{0x44, 0x02, 0x00}).String())
	assert.Equal(t, "[]", CommandSet{}.String())
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "get", CmdGet.String())
	assert.Equal(t, "extended_erase", CmdExtendedErase.String())
	assert.Equal(t, "readout_unprotect", CmdReadoutUnprotect.String())
	assert.Equal(t, "0x55", Command(0x55).String())
}

func TestInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  string
		info     Info
		extended bool
	}{
		{
			name:     "extended erase target",
			info:     Info{Version: 0x31, Commands: NewCommandSet([]byte{0x00, 0x44})},
			version:  "3.1",
			extended: true,
		},
		{
			name:    "legacy erase target",
			info:    Info{Version: 0x22, Commands: NewCommandSet([]byte{0x00, 0x43})},
			version: "2.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.info.VersionString())
			assert.Equal(t, tt.extended, tt.info.ExtendedErase())
		})
	}
}
