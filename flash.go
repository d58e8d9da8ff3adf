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
	"time"
)

// DefaultFlashAddress is the start of main flash on STM32 parts
const DefaultFlashAddress uint32 = 0x08000000

// FlashOptions controls Session.Flash
type FlashOptions struct {
	// Address is where the image is written
	Address uint32
	// Erase runs a full erase before writing
	Erase bool
	// Verify reads the image back after writing
	Verify bool
}

// FlashResult summarizes a completed Flash
type FlashResult struct {
	Info     Info
	Bytes    int
	Pages    int
	Duration time.Duration
	Erased   bool
	Verified bool
}

// Flash identifies the target, optionally erases it, writes image at
// opts.Address and optionally verifies it. It stops at the first failure.
func (s *Session) Flash(ctx context.Context, image []byte, opts FlashOptions) (*FlashResult, error) {
	var result *FlashResult
	err := s.do(func() error {
		start := time.Now()
		pages, err := SplitPages(len(image), opts.Address)
		if err != nil {
			return err
		}
		info, err := s.identify()
		if err != nil {
			return err
		}

		if opts.Erase {
			if err := s.eraseAll(ctx); err != nil {
				return err
			}
		}
		if err := s.writeMemory(ctx, image, opts.Address); err != nil {
			return err
		}
		if opts.Verify {
			if err := s.verify(ctx, image, opts.Address); err != nil {
				return err
			}
		}

		result = &FlashResult{
			Info:     *info,
			Bytes:    len(image),
			Pages:    len(pages),
			Duration: time.Since(start),
			Erased:   opts.Erase,
			Verified: opts.Verify,
		}
		if s.log != nil {
			s.log.Info().
				Str("session", s.id).
				Int("bytes", result.Bytes).
				Int("pages", result.Pages).
				Int64("duration_ms", result.Duration.Milliseconds()).
				Msg("flash complete")
		}
		return nil
	})
	return result, err
}
