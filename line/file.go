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

package line

import (
	"fmt"
	"os"
	"sync"
)

// File is a line driven by writing "1" or "0" to a kernel control file
type File struct {
	path      string
	mu        sync.Mutex
	activeLow bool
}

// NewFile returns a line for the control file at path. The file must exist.
func NewFile(path string, activeLow bool) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPinNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrPinNotFound, path)
	}
	return &File{path: path, activeLow: activeLow}, nil
}

// Set writes the electrical level for active to the control file
func (f *File) Set(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	value := []byte("0")
	if level(active, f.activeLow) {
		value = []byte("1")
	}

	fd, err := os.OpenFile(f.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := fd.Write(value); err != nil {
		_ = fd.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	return nil
}

// String returns the control file path
func (f *File) String() string {
	return f.path
}
