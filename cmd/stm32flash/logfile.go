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

package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"
)

// openSessionLog appends to path and writes a session header.
func openSessionLog(path string, args []string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // user-chosen log path
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	writeSessionHeader(f, time.Now(), args)
	return f, nil
}

// writeSessionHeader writes metadata about the run to the log.
func writeSessionHeader(w io.Writer, now time.Time, args []string) {
	_, _ = fmt.Fprint(w, "=== stm32flash session log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Command Line: stm32flash %s\n", strings.Join(args, " "))
	_, _ = fmt.Fprint(w, "===============================\n\n")
}

// closeSessionLog writes a footer and closes f.
func closeSessionLog(f *os.File) error {
	_, _ = fmt.Fprintf(f, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}
