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
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection is the direction of traced wire data
type TraceDirection string

const (
	// TraceTX is host to target
	TraceTX TraceDirection = "TX"
	// TraceRX is target to host
	TraceRX TraceDirection = "RX"
)

// maxTracedBytes bounds how much of one entry FormatTrace prints
const maxTracedBytes = 32

// TraceEntry is one write, read or read timeout on the link
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, formatHexBytes(e.Data))
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the last wire exchanges before a failure.
//
//	if te := stm32boot.GetTrace(err); te != nil {
//	    fmt.Fprint(os.Stderr, te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one entry per line, ">" for TX and "<"
// for RX
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)\n", e.Transport, e.Port)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		fmt.Fprintf(&sb, "  %s %s", arrow, formatHexBytes(entry.Data))
		if entry.Note != "" {
			fmt.Fprintf(&sb, " (%s)", entry.Note)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	shown := data[:min(len(data), maxTracedBytes)]
	s := fmt.Sprintf("% X", shown)
	if len(data) > len(shown) {
		s += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return s
}

// TraceBuffer keeps the most recent entries of one session in a ring
type TraceBuffer struct {
	transport string
	port      string
	ring      []TraceEntry
	next      int
	full      bool
}

// NewTraceBuffer returns a buffer holding up to size entries;
// size <= 0 means DefaultTraceSize
func NewTraceBuffer(transport, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = DefaultTraceSize
	}
	return &TraceBuffer{
		transport: transport,
		port:      port,
		ring:      make([]TraceEntry, size),
	}
}

// RecordTX records bytes written to the target
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.add(TraceTX, data, note)
}

// RecordRX records bytes read from the target
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.add(TraceRX, data, note)
}

// RecordTimeout records a read that returned nothing
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.add(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) add(dir TraceDirection, data []byte, note string) {
	tb.ring[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next++
	if tb.next == len(tb.ring) {
		tb.next = 0
		tb.full = true
	}
}

// Entries returns the recorded entries, oldest first
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.ring[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.ring))
	out = append(out, tb.ring[tb.next:]...)
	return append(out, tb.ring[:tb.next]...)
}

// WrapError attaches a snapshot of the trace to err; nil stays nil
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Transport: tb.transport,
		Port:      tb.port,
		Trace:     tb.Entries(),
	}
}

// Clear drops all entries
func (tb *TraceBuffer) Clear() {
	clear(tb.ring)
	tb.next = 0
	tb.full = false
}

// HasTrace reports whether err carries a wire trace
func HasTrace(err error) bool {
	return GetTrace(err) != nil
}

// GetTrace returns the wire trace carried by err, or nil
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
