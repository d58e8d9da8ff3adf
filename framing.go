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
	"strings"

	"github.com/ZaparooProject/go-stm32boot/internal/frame"
)

// Protocol bytes
const (
	// Ack is the positive acknowledgement byte
	Ack = frame.Ack
	// Nack is the negative acknowledgement byte
	Nack = frame.Nack
	// SyncByte activates the bootloader and lets it measure the baud rate
	SyncByte = frame.Sync
	// MaxPageSize is the largest payload of one read or write transaction
	MaxPageSize = frame.MaxPageSize
)

// Framing selects how single command bytes are protected on the wire.
// A session uses exactly one framing for every command it sends.
type Framing int

const (
	// FramingUnset is the zero value and is rejected by Config.Validate
	FramingUnset Framing = iota
	// FramingComplement sends {cmd, cmd^0xFF}
	FramingComplement
	// FramingChecksum sends {cmd, checksum(cmd)} which is {cmd, cmd}
	FramingChecksum
)

// String returns the framing name as accepted by ParseFraming
func (f Framing) String() string {
	switch f {
	case FramingComplement:
		return "complement"
	case FramingChecksum:
		return "checksum"
	case FramingUnset:
		return "unset"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

// ParseFraming parses "complement" or "checksum"
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "complement":
		return FramingComplement, nil
	case "checksum":
		return FramingChecksum, nil
	case "":
		return FramingUnset, ErrFramingUnset
	default:
		return FramingUnset, fmt.Errorf("%w: unknown framing %q", ErrInvalidParameter, s)
	}
}

// selfCheck frames a single byte. Used for command opcodes and the legacy
// global erase marker.
func (f Framing) selfCheck(b byte) ([]byte, error) {
	switch f {
	case FramingComplement:
		return frame.Complement(b), nil
	case FramingChecksum:
		return frame.WithChecksum([]byte{b}), nil
	case FramingUnset:
		return nil, ErrFramingUnset
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameter, f)
	}
}

// Checksum returns the XOR of all bytes in data; 0 for empty input.
func Checksum(data []byte) byte {
	return frame.Checksum(data)
}

// WithChecksum returns data followed by its checksum in a new slice.
func WithChecksum(data []byte) []byte {
	return frame.WithChecksum(data)
}

// EncodeAddress returns addr big-endian followed by its checksum.
func EncodeAddress(addr uint32) []byte {
	return frame.EncodeAddress(addr)
}
