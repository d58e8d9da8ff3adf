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

package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, c Conn) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 512)
	for {
		n, err := c.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func write(t *testing.T, c Conn, data ...byte) {
	t.Helper()
	n, err := c.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func syncedBootloader(t *testing.T, framing Framing) *VirtualBootloader {
	t.Helper()
	v := NewVirtualBootloader(framing)
	write(t, v, 0x7F)
	require.Equal(t, []byte{0x79}, readAll(t, v))
	return v
}

func TestVirtualBootloader_SyncIgnoresNoise(t *testing.T) {
	t.Parallel()

	v := NewVirtualBootloader(FramingComplement)
	write(t, v, 0x00, 0x55)
	assert.Empty(t, readAll(t, v))

	write(t, v, 0x7F)
	assert.Equal(t, []byte{0x79}, readAll(t, v))

	// A second activation byte is refused once synced
	write(t, v, 0x7F)
	assert.Equal(t, []byte{0x1F}, readAll(t, v))
}

func TestVirtualBootloader_Get(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		framing Framing
		frame   []byte
		want    []byte
	}{
		{
			name:    "complement framing",
			framing: FramingComplement,
			frame:   []byte{0x00, 0xFF},
			want:    []byte{0x79, 0x05, 0x31, 0x00, 0x02, 0x11, 0x31, 0x44, 0x79},
		},
		{
			name:    "checksum framing",
			framing: FramingChecksum,
			frame:   []byte{0x00, 0x00},
			want:    []byte{0x79, 0x05, 0x31, 0x00, 0x02, 0x11, 0x31, 0x44, 0x79},
		},
		{
			name:    "checksum frame sent to complement target",
			framing: FramingComplement,
			frame:   []byte{0x00, 0x00},
			want:    []byte{0x1F},
		},
		{
			name:    "complement frame sent to checksum target",
			framing: FramingChecksum,
			frame:   []byte{0x00, 0xFF},
			want:    []byte{0x1F},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := syncedBootloader(t, tt.framing)
			write(t, v, tt.frame...)
			assert.Equal(t, tt.want, readAll(t, v))
		})
	}
}

func TestVirtualBootloader_GetID(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)
	write(t, v, 0x02, 0xFD)
	assert.Equal(t, []byte{0x79, 0x01, 0x04, 0x14, 0x79}, readAll(t, v))
}

func TestVirtualBootloader_UnsupportedCommand(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)
	write(t, v, 0x21, 0xDE)
	assert.Equal(t, []byte{0x1F}, readAll(t, v))
	assert.Empty(t, v.CommandLog())
}

func TestVirtualBootloader_WriteThenRead(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)

	write(t, v, 0x31, 0xCE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x08)
	write(t, v, 0x02, 0xAA, 0xBB, 0xCC, 0x02^0xAA^0xBB^0xCC)
	assert.Equal(t, []byte{0x79, 0x79, 0x79}, readAll(t, v))

	writes := v.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, uint32(0x08000000), writes[0].Address)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, writes[0].Data)

	write(t, v, 0x11, 0xEE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x08)
	write(t, v, 0x03, 0x03)
	assert.Equal(t, []byte{0x79, 0x79, 0x79, 0xAA, 0xBB, 0xCC, 0xFF}, readAll(t, v))
	assert.Equal(t, []PageRead{{Address: 0x08000000, Length: 4}}, v.Reads())
}

func TestVirtualBootloader_ReadLengthIsChecksummed(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)

	write(t, v, 0x11, 0xEE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x08)
	write(t, v, 0x03, 0xFC)
	assert.Equal(t, []byte{0x79, 0x79, 0x1F}, readAll(t, v))
	assert.Empty(t, v.Reads())
}

func TestVirtualBootloader_BadChecksumsAreNacked(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)

	write(t, v, 0x31, 0xCE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x00)
	assert.Equal(t, []byte{0x79, 0x1F}, readAll(t, v))

	write(t, v, 0x31, 0xCE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x08)
	write(t, v, 0x00, 0x42, 0x00)
	assert.Equal(t, []byte{0x79, 0x79, 0x1F}, readAll(t, v))
	assert.Empty(t, v.Writes())
}

func TestVirtualBootloader_ExtendedErase(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)
	v.SetMemory(0x08000000, []byte{1, 2, 3})
	v.SetMemory(0x08000800, []byte{4})

	// Erase page 1 only
	write(t, v, 0x44, 0xBB)
	write(t, v, 0x00, 0x00, 0x00, 0x01, 0x01)
	assert.Equal(t, []byte{0x79, 0x79}, readAll(t, v))
	assert.Equal(t, []byte{1, 2, 3}, v.Memory(0x08000000, 3))
	assert.Equal(t, []byte{0xFF}, v.Memory(0x08000800, 1))

	// Mass erase
	write(t, v, 0x44, 0xBB)
	write(t, v, 0xFF, 0xFF, 0x00)
	assert.Equal(t, []byte{0x79, 0x79}, readAll(t, v))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, v.Memory(0x08000000, 3))

	erases := v.Erases()
	require.Len(t, erases, 2)
	assert.Equal(t, []uint16{1}, erases[0].Pages)
	assert.Equal(t, uint16(0xFFFF), erases[1].Special)
}

func TestVirtualBootloader_LegacyGlobalErase(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingChecksum)
	v.SetCommands(CmdGet, CmdErase)
	v.SetMemory(0x08000000, []byte{0x00})

	write(t, v, 0x43, 0x43)
	write(t, v, 0xFF, 0xFF)
	assert.Equal(t, []byte{0x79, 0x79}, readAll(t, v))
	assert.Equal(t, []byte{0xFF}, v.Memory(0x08000000, 1))
	require.Len(t, v.Erases(), 1)
	assert.True(t, v.Erases()[0].Global)
}

func TestVirtualBootloader_Go(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)
	v.SetCommands(CmdGet, CmdGo)

	write(t, v, 0x21, 0xDE)
	write(t, v, 0x08, 0x00, 0x00, 0x00, 0x08)
	assert.Equal(t, []byte{0x79, 0x79}, readAll(t, v))

	addr, ok := v.JumpAddress()
	require.True(t, ok)
	assert.Equal(t, uint32(0x08000000), addr)
	assert.False(t, v.InBootloader())

	write(t, v, 0x00, 0xFF)
	assert.Empty(t, readAll(t, v))
}

func TestVirtualBootloader_Faults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		fault Fault
		want  []byte
	}{
		{
			name:  "nack second address",
			fault: Fault{Point: AckAddress, Occurrence: 2, Reply: 0x1F},
			want:  []byte{0x79, 0x79, 0x79, 0x79, 0x1F},
		},
		{
			name:  "silent first payload",
			fault: Fault{Point: AckPayload, Occurrence: 1, Silent: true},
			want:  []byte{0x79, 0x79},
		},
		{
			name:  "garbage on every command",
			fault: Fault{Point: AckCommand, Reply: 0x42},
			want:  []byte{0x42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := syncedBootloader(t, FramingComplement)
			v.AddFault(tt.fault)

			// Stop at the first step not answered with ACK, as the host does
			var got []byte
		pages:
			for page := range 2 {
				steps := [][]byte{
					{0x31, 0xCE},
					{0x08, 0x00, byte(page), 0x00, 0x08 ^ byte(page)},
					{0x00, 0x5A, 0x5A},
				}
				for _, step := range steps {
					write(t, v, step...)
					reply := readAll(t, v)
					got = append(got, reply...)
					if len(reply) == 0 || reply[len(reply)-1] != 0x79 {
						break pages
					}
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVirtualBootloader_SilentAndReset(t *testing.T) {
	t.Parallel()

	v := NewVirtualBootloader(FramingComplement)
	v.SetSilent(true)
	write(t, v, 0x7F)
	assert.Empty(t, readAll(t, v))
	assert.Equal(t, []byte{0x7F}, v.Received())

	v.SetSilent(false)
	v.Reset(false)
	write(t, v, 0x7F)
	assert.Empty(t, readAll(t, v))
	assert.False(t, v.InBootloader())

	v.Reset(true)
	write(t, v, 0x7F)
	assert.Equal(t, []byte{0x79}, readAll(t, v))
	assert.Equal(t, 2, v.ResetCount())
}

func TestVirtualBootloader_Closed(t *testing.T) {
	t.Parallel()

	v := NewVirtualBootloader(FramingComplement)
	require.NoError(t, v.Close())
	_, err := v.Write([]byte{0x7F})
	require.Error(t, err)
	_, err = v.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestJitteryConn_FragmentsWithoutLoss(t *testing.T) {
	t.Parallel()

	v := syncedBootloader(t, FramingComplement)
	v.SetMemory(0x08000000, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	conn := NewJitteryConn(v, JitterConfig{MaxChunk: 3, Seed: 42})

	write(t, conn, 0x11, 0xEE)
	write(t, conn, 0x08, 0x00, 0x00, 0x00, 0x08)
	write(t, conn, 0x0F, 0xF0)

	buf := make([]byte, 64)
	var got []byte
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		assert.LessOrEqual(t, n, 3)
		got = append(got, buf[:n]...)
	}
	want := append([]byte{0x79, 0x79, 0x79}, v.Memory(0x08000000, 16)...)
	assert.Equal(t, want, got)
}

func TestTargetLines_ResetFollowsBootLine(t *testing.T) {
	t.Parallel()

	v := NewVirtualBootloader(FramingComplement)
	log := &LineLog{}
	boot, reset := NewTargetLines(v, log)

	require.NoError(t, boot.Set(false))
	require.NoError(t, reset.Set(false))
	require.NoError(t, reset.Set(true))
	assert.False(t, v.InBootloader())

	require.NoError(t, boot.Set(true))
	require.NoError(t, reset.Set(false))
	require.NoError(t, reset.Set(true))
	assert.True(t, v.InBootloader())
	assert.Equal(t, 2, v.ResetCount())

	assert.Equal(t, []LineEvent{
		{Line: "boot", Active: false},
		{Line: "reset", Active: false},
		{Line: "reset", Active: true},
		{Line: "boot", Active: true},
		{Line: "reset", Active: false},
		{Line: "reset", Active: true},
	}, log.Events())
	assert.Equal(t, []bool{false, true}, boot.History())
}

func TestFakeLine_FailWith(t *testing.T) {
	t.Parallel()

	l := NewFakeLine("boot", nil)
	require.NoError(t, l.Set(true))
	l.FailWith(assert.AnError)
	require.ErrorIs(t, l.Set(false), assert.AnError)
	assert.True(t, l.Level())
}
