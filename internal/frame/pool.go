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

import "sync"

// dataFrames holds buffers for page data frames, the only frames big
// enough to be worth pooling
var dataFrames = sync.Pool{
	New: func() any {
		return new([MaxDataFrameLength]byte)
	},
}

// GetBuffer returns a buffer of n bytes for a data frame. Sizes above
// MaxDataFrameLength are allocated and never pooled.
func GetBuffer(n int) []byte {
	if n > MaxDataFrameLength {
		return make([]byte, n)
	}
	arr, ok := dataFrames.Get().(*[MaxDataFrameLength]byte)
	if !ok {
		return make([]byte, n)
	}
	return arr[:n]
}

// PutBuffer hands a buffer from GetBuffer back to the pool
func PutBuffer(buf []byte) {
	if cap(buf) != MaxDataFrameLength {
		return
	}
	dataFrames.Put((*[MaxDataFrameLength]byte)(buf[:MaxDataFrameLength]))
}
