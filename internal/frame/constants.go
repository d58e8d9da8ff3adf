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

// Acknowledgement and handshake bytes
const (
	Ack  = 0x79 // Positive acknowledgement
	Nack = 0x1F // Negative acknowledgement
	Sync = 0x7F // Autobaud/sync byte sent once after reset
)

// Frame size limits
const (
	MaxPageSize        = 256             // Largest WRITE_MEMORY/READ_MEMORY payload
	AddressFrameLength = 5               // 4 address bytes + checksum
	MaxDataFrameLength = MaxPageSize + 2 // length byte + data + checksum
)

// Extended erase special selectors (16 bit, MSB first)
const (
	ExtendedEraseMass  = 0xFFFF
	ExtendedEraseBank1 = 0xFFFE
	ExtendedEraseBank2 = 0xFFFD

	// ExtendedEraseSpecial is the lowest value reserved for special erase modes.
	ExtendedEraseSpecial = 0xFFF0
)

// GlobalErase is the legacy ERASE selector for a full chip erase.
const GlobalErase = 0xFF
