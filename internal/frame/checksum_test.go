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

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0,
		},
		{
			name: "nil data",
			data: nil,
			want: 0,
		},
		{
			name: "single byte",
			data: []byte{0x42},
			want: 0x42,
		},
		{
			name: "two bytes",
			data: []byte{0x10, 0x20},
			want: 0x30,
		},
		{
			name: "equal bytes cancel",
			data: []byte{0xFF, 0xFF},
			want: 0x00,
		},
		{
			name: "flash base address",
			data: []byte{0x08, 0x00, 0x00, 0x00},
			want: 0x08,
		},
		{
			name: "address with all bytes set",
			data: []byte{0x08, 0x00, 0x01, 0x00},
			want: 0x09,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

func TestWithChecksum(t *testing.T) {
	t.Parallel()

	in := make([]byte, 2, 8)
	in[0], in[1] = 0x12, 0x34
	out := WithChecksum(in)

	if !bytes.Equal(out, []byte{0x12, 0x34, 0x26}) {
		t.Fatalf("WithChecksum() = % X", out)
	}
	// Appending must not reuse the spare capacity of the input.
	if in[:3][2] != 0 {
		t.Errorf("input backing array modified: % X", in[:3])
	}
	if got := WithChecksum(nil); !bytes.Equal(got, []byte{0x00}) {
		t.Errorf("WithChecksum(nil) = % X, want 00", got)
	}
}

func TestEncodeAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want []byte
		addr uint32
	}{
		{name: "flash base", addr: 0x08000000, want: []byte{0x08, 0x00, 0x00, 0x00, 0x08}},
		{name: "second page", addr: 0x08000100, want: []byte{0x08, 0x00, 0x01, 0x00, 0x09}},
		{name: "zero", addr: 0, want: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
		{name: "max", addr: 0xFFFFFFFF, want: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00}},
		{name: "system memory", addr: 0x1FFF7800, want: []byte{0x1F, 0xFF, 0x78, 0x00, 0x98}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EncodeAddress(tt.addr); !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeAddress(0x%08X) = % X, want % X", tt.addr, got, tt.want)
			}
		})
	}
}

func TestEncodeAddressRoundTrip(t *testing.T) {
	t.Parallel()

	addrs := []uint32{0, 1, 0xFF, 0x100, 0x08000000, 0x0800FFFF, 0x20000000, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF}
	for i := uint32(0); i < 4096; i++ {
		addrs = append(addrs, i*0x000F4243)
	}

	for _, addr := range addrs {
		enc := EncodeAddress(addr)
		if len(enc) != AddressFrameLength {
			t.Fatalf("EncodeAddress(0x%08X) length %d", addr, len(enc))
		}
		if got := binary.BigEndian.Uint32(enc[:4]); got != addr {
			t.Fatalf("decoded 0x%08X, want 0x%08X", got, addr)
		}
		if enc[4] != enc[0]^enc[1]^enc[2]^enc[3] {
			t.Fatalf("checksum byte 0x%02X wrong for % X", enc[4], enc[:4])
		}
	}
}

func TestComplement(t *testing.T) {
	t.Parallel()

	for cmd := 0; cmd < 256; cmd++ {
		got := Complement(byte(cmd))
		if len(got) != 2 || got[0] != byte(cmd) || got[0]^got[1] != 0xFF {
			t.Fatalf("Complement(0x%02X) = % X", cmd, got)
		}
	}
	if got := Complement(0x31); !bytes.Equal(got, []byte{0x31, 0xCE}) {
		t.Errorf("Complement(0x31) = % X, want 31 CE", got)
	}
}
