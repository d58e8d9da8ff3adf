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

package frame

import "encoding/binary"

// Checksum computes the checksum for a data buffer.
// This is the XOR of all bytes, seeded at zero, so an empty buffer yields 0.
func Checksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// WithChecksum returns a new slice holding data followed by its checksum.
// The input's backing array is never written to.
func WithChecksum(data []byte) []byte {
	out := make([]byte, len(data)+1)
	copy(out, data)
	out[len(data)] = Checksum(data)
	return out
}

// EncodeAddress returns the 5 byte address frame: addr MSB first, then the
// XOR of those four bytes.
func EncodeAddress(addr uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], addr)
	return WithChecksum(buf[:])
}

// Complement returns the two byte self-check frame {b, b^0xFF}.
func Complement(b byte) []byte {
	return []byte{b, b ^ 0xFF}
}
