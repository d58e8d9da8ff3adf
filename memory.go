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
	"context"
	"fmt"
	"math"

	"github.com/ZaparooProject/go-stm32boot/internal/frame"
)

// Page is one read or write transaction of a chunked transfer
type Page struct {
	Offset  int
	Length  int
	Address uint32
}

// SplitPages partitions length bytes starting at base into pages of at most
// 256 bytes in increasing offset order. Only the last page may be shorter.
func SplitPages(length int, base uint32) ([]Page, error) {
	if length <= 0 {
		return nil, ErrEmptyData
	}
	if uint64(base)+uint64(length) > math.MaxUint32+1 {
		return nil, fmt.Errorf("%w: 0x%08X + %d", ErrAddressOverflow, base, length)
	}

	pages := make([]Page, 0, (length+frame.MaxPageSize-1)/frame.MaxPageSize)
	for off := 0; off < length; off += frame.MaxPageSize {
		pages = append(pages, Page{
			Offset:  off,
			Length:  min(frame.MaxPageSize, length-off),
			Address: base + uint32(off), //nolint:gosec // Range checked above
		})
	}
	return pages, nil
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// writeMemory writes data page by page. It stops at the first failed page;
// pages already written stay written.
func (s *Session) writeMemory(ctx context.Context, data []byte, base uint32) error {
	pages, err := SplitPages(len(data), base)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := cancelled(ctx); err != nil {
			return err
		}
		if err := s.bl.WriteMemoryPage(p.Address, data[p.Offset:p.Offset+p.Length]); err != nil {
			return fmt.Errorf("write page 0x%08X: %w", p.Address, err)
		}
		if s.log != nil {
			s.log.Debug().Str("session", s.id).Uint32("address", p.Address).Int("length", p.Length).Msg("page written")
		}
		s.progress(OpWrite, p.Offset+p.Length, len(data), p.Address)
	}
	return nil
}

// readMemory reads length bytes page by page into one buffer
func (s *Session) readMemory(ctx context.Context, length int, base uint32, op string) ([]byte, error) {
	pages, err := SplitPages(length, base)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, length)
	for _, p := range pages {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		data, err := s.bl.ReadMemoryPage(p.Address, p.Length)
		if err != nil {
			return nil, fmt.Errorf("read page 0x%08X: %w", p.Address, err)
		}
		out = append(out, data...)
		if s.log != nil {
			s.log.Debug().Str("session", s.id).Uint32("address", p.Address).Int("length", p.Length).Msg("page read")
		}
		s.progress(op, p.Offset+p.Length, length, p.Address)
	}
	return out, nil
}

// verify reads data back page by page and reports the first differing byte
func (s *Session) verify(ctx context.Context, data []byte, base uint32) error {
	pages, err := SplitPages(len(data), base)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := cancelled(ctx); err != nil {
			return err
		}
		got, err := s.bl.ReadMemoryPage(p.Address, p.Length)
		if err != nil {
			return fmt.Errorf("verify page 0x%08X: %w", p.Address, err)
		}
		want := data[p.Offset : p.Offset+p.Length]
		for i := range want {
			if got[i] != want[i] {
				return &VerifyMismatchError{
					Address:  p.Address + uint32(i), //nolint:gosec // i < 256
					Expected: want[i],
					Actual:   got[i],
				}
			}
		}
		s.progress(OpVerify, p.Offset+p.Length, len(data), p.Address)
	}
	return nil
}
