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
	"slices"
	"strings"
)

// Command is a bootloader command opcode (AN3155 §2)
type Command byte

// Bootloader commands
const (
	CmdGet              Command = 0x00
	CmdGetVersion       Command = 0x01
	CmdGetID            Command = 0x02
	CmdReadMemory       Command = 0x11
	CmdGo               Command = 0x21
	CmdWriteMemory      Command = 0x31
	CmdErase            Command = 0x43
	CmdExtendedErase    Command = 0x44
	CmdWriteProtect     Command = 0x63
	CmdWriteUnprotect   Command = 0x73
	CmdReadoutProtect   Command = 0x82
	CmdReadoutUnprotect Command = 0x92
)

var commandNames = map[Command]string{
	CmdGet:              "get",
	CmdGetVersion:       "get_version",
	CmdGetID:            "get_id",
	CmdReadMemory:       "read_memory",
	CmdGo:               "go",
	CmdWriteMemory:      "write_memory",
	CmdErase:            "erase",
	CmdExtendedErase:    "extended_erase",
	CmdWriteProtect:     "write_protect",
	CmdWriteUnprotect:   "write_unprotect",
	CmdReadoutProtect:   "readout_protect",
	CmdReadoutUnprotect: "readout_unprotect",
}

// String returns the command name, or its hex value if unknown
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// CommandSet is the sorted, deduplicated set of opcodes reported by GET
type CommandSet []Command

// NewCommandSet builds a CommandSet from raw opcodes
func NewCommandSet(raw []byte) CommandSet {
	set := make(CommandSet, 0, len(raw))
	for _, b := range raw {
		set = append(set, Command(b))
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Has reports whether cmd is in the set
func (s CommandSet) Has(cmd Command) bool {
	_, found := slices.BinarySearch(s, cmd)
	return found
}

// String formats the set as a hex list, e.g. [0x00 0x02 0x11]
func (s CommandSet) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = fmt.Sprintf("0x%02X", byte(c))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Info is what Session.Identify learns about the target
type Info struct {
	Commands CommandSet
	ChipID   uint64
	Version  byte
}

// ExtendedErase reports whether the target supports the 0x44 erase command
func (i *Info) ExtendedErase() bool {
	return i.Commands.Has(CmdExtendedErase)
}

// VersionString formats the bootloader version as major.minor
func (i *Info) VersionString() string {
	return fmt.Sprintf("%d.%d", i.Version>>4, i.Version&0x0F)
}
