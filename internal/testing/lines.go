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
	"github.com/ZaparooProject/go-stm32boot/internal/syncutil"
)

// LineEvent is one Set call on a FakeLine
type LineEvent struct {
	Line   string
	Active bool
}

// LineLog records Set calls across several lines in call order
type LineLog struct {
	events []LineEvent
	mu     syncutil.Mutex
}

// Events returns a copy of the recorded events
func (l *LineLog) Events() []LineEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LineEvent(nil), l.events...)
}

func (l *LineLog) record(e LineEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// FakeLine is an in-memory digital output line.
// It satisfies stm32boot.Line.
type FakeLine struct {
	log     *LineLog
	onSet   func(active bool)
	failErr error
	name    string
	history []bool
	mu      syncutil.Mutex
	level   bool
}

// NewFakeLine creates a deasserted line; log may be nil
func NewFakeLine(name string, log *LineLog) *FakeLine {
	return &FakeLine{name: name, log: log}
}

// Set drives the line. A configured failure is returned without changing
// the level.
func (l *FakeLine) Set(active bool) error {
	l.mu.Lock()
	if l.failErr != nil {
		err := l.failErr
		l.mu.Unlock()
		return err
	}
	l.level = active
	l.history = append(l.history, active)
	onSet := l.onSet
	l.mu.Unlock()

	if l.log != nil {
		l.log.record(LineEvent{Line: l.name, Active: active})
	}
	if onSet != nil {
		onSet(active)
	}
	return nil
}

// Level returns the last level set
func (l *FakeLine) Level() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// History returns every level set, oldest first
func (l *FakeLine) History() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.history...)
}

// FailWith makes subsequent Set calls return err; nil clears it
func (l *FakeLine) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// OnSet registers a callback run after every successful Set
func (l *FakeLine) OnSet(fn func(active bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSet = fn
}

// NewTargetLines returns boot-select and reset lines wired to target.
// Releasing reset (driving it active after it was inactive) restarts the
// target, into the bootloader when the boot line is asserted.
func NewTargetLines(target *VirtualBootloader, log *LineLog) (boot, reset *FakeLine) {
	boot = NewFakeLine("boot", log)
	reset = NewFakeLine("reset", log)

	held := false
	reset.OnSet(func(active bool) {
		if !active {
			held = true
			return
		}
		if held {
			held = false
			target.Reset(boot.Level())
		}
	})
	return boot, reset
}
