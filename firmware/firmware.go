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

// Package firmware loads application images and fingerprints them the way
// the STM32 CRC peripheral does.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MaxImageSize bounds how much is read from any source
const MaxImageSize = 16 << 20

var (
	// ErrEmptyImage is returned for a zero-length image
	ErrEmptyImage = errors.New("firmware image is empty")
	// ErrImageTooLarge is returned when a source exceeds MaxImageSize
	ErrImageTooLarge = errors.New("firmware image too large")
	// ErrInvalidS3URL is returned for a malformed s3:// source
	ErrInvalidS3URL = errors.New("invalid s3 url")
)

// Load reads an image from a local path or an s3://bucket/key URL.
// The image is returned as an opaque byte blob.
func Load(ctx context.Context, src string, s3 S3Config) ([]byte, error) {
	if strings.HasPrefix(src, "s3://") {
		bucket, key, err := ParseS3URL(src)
		if err != nil {
			return nil, err
		}
		store, err := newS3Store(s3)
		if err != nil {
			return nil, err
		}
		return loadObject(ctx, store, bucket, key)
	}
	return loadFile(src)
}

func loadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	return readImage(f, path)
}

// readImage reads at most MaxImageSize bytes from r
func readImage(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyImage, name)
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrImageTooLarge, name, MaxImageSize)
	}
	return data, nil
}

// Pad returns image extended with 0xFF, the erased flash value, to a
// multiple of align bytes. The input is not modified.
func Pad(image []byte, align int) []byte {
	size := len(image)
	if align > 1 && size%align != 0 {
		size += align - size%align
	}
	out := make([]byte, size)
	n := copy(out, image)
	for i := n; i < size; i++ {
		out[i] = 0xFF
	}
	return out
}
