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

// Package stm32boot talks to the factory USART bootloader of STM32
// microcontrollers (ST AN3155). A Session resets the target into the
// bootloader, runs commands over a Transport and releases the target
// afterwards.
package stm32boot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-stm32boot/internal/syncutil"
)

// State is the lifecycle state of a Session
type State int

const (
	// StateIdle is before the entry sequence starts
	StateIdle State = iota
	// StateBootstrapAsserted means boot-select is driven and reset pulsed
	StateBootstrapAsserted
	// StateSynced means the bootloader acknowledged 0x7F
	StateSynced
	// StateReleased is terminal; lines are released
	StateReleased
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBootstrapAsserted:
		return "bootstrap_asserted"
	case StateSynced:
		return "synced"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one period of bootloader mode on the target. It owns its
// transport link and both lines from Open until Close. Only a synced
// session accepts operations; a released session is never reused.
//
// The transport itself is not closed by the session; its owner closes it.
type Session struct {
	started   time.Time
	transport Transport
	boot      Line
	reset     Line
	log       types.Logger
	observer  Observer
	lastErr   error
	closeErr  error
	link      *Link
	bl        *Bootloader
	info      *Info
	id        string
	cfg       Config
	closeOnce sync.Once
	mu        syncutil.Mutex
	state     State
}

// Open runs the entry sequence: assert boot-select, pulse reset, flush the
// link, send 0x7F and wait for the ACK. If any step fails the release
// sequence runs before Open returns.
func Open(ctx context.Context, transport Transport, boot, reset Line, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	if boot == nil || reset == nil {
		return nil, ErrLineMissing
	}

	link := NewLink(transport, cfg)
	bl, err := NewBootloader(link, cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        uuid.NewString(),
		started:   time.Now(),
		transport: transport,
		boot:      boot,
		reset:     reset,
		cfg:       cfg,
		log:       cfg.Logger,
		observer:  observerOrNop(cfg.Observer),
		link:      link,
		bl:        bl,
		state:     StateIdle,
	}

	if err := s.enter(ctx); err != nil {
		s.mu.Lock()
		err = s.fail(err)
		s.mu.Unlock()
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Run opens a session, calls fn and always closes the session afterwards.
// The returned error joins fn's error with any release error.
func Run(ctx context.Context, transport Transport, boot, reset Line, cfg Config, fn func(*Session) error) error {
	s, err := Open(ctx, transport, boot, reset, cfg)
	if err != nil {
		return err
	}
	opErr := fn(s)
	if opErr != nil {
		s.mu.Lock()
		if s.lastErr == nil {
			s.lastErr = opErr
		}
		s.mu.Unlock()
	}
	return errors.Join(opErr, s.Close())
}

// ID returns the unique session identifier used in logs and metrics
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trace returns the session's wire trace
func (s *Session) Trace() *TraceBuffer {
	return s.link.Trace()
}

func (s *Session) enter(ctx context.Context) error {
	if s.log != nil {
		s.log.Info().Str("session", s.id).Str("transport", string(s.transport.Type())).Msg("entering bootloader")
	}
	if err := s.link.SetTimeout(s.cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.boot.Set(true); err != nil {
		return fmt.Errorf("assert boot-select: %w", err)
	}
	s.setState(StateBootstrapAsserted)

	if err := s.pulseReset(ctx); err != nil {
		return err
	}
	if err := s.link.Flush(); err != nil {
		return err
	}
	s.link.Trace().Clear()
	if err := s.link.WriteByte(SyncByte); err != nil {
		return err
	}
	if err := s.link.AwaitAck("sync"); err != nil {
		return err
	}

	s.setState(StateSynced)
	if s.log != nil {
		s.log.Info().Str("session", s.id).Msg("bootloader synced")
	}
	return nil
}

// pulseReset drives reset inactive for ResetLowTime, then active, then
// waits ResetHoldTime for the target to start.
func (s *Session) pulseReset(ctx context.Context) error {
	if err := s.reset.Set(false); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	if err := sleepCtx(ctx, s.cfg.ResetLowTime); err != nil {
		return err
	}
	if err := s.reset.Set(true); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	return sleepCtx(ctx, s.cfg.ResetHoldTime)
}

// Close releases the target: boot-select is deasserted and reset pulsed so
// the application starts. It runs once; later calls return the first
// result. Only release errors are returned.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.release()
	})
	return s.closeErr
}

func (s *Session) release() error {
	s.mu.Lock()
	prev := s.state
	s.state = StateReleased
	outcome := s.lastErr
	s.mu.Unlock()

	// Release is not cancellable
	bootErr := s.boot.Set(false)
	if bootErr != nil {
		bootErr = fmt.Errorf("release boot-select: %w", bootErr)
	}
	resetErr := s.pulseReset(context.Background())
	err := errors.Join(bootErr, resetErr)

	elapsed := time.Since(s.started)
	if s.log != nil {
		s.log.Info().
			Str("session", s.id).
			Str("from", prev.String()).
			Int64("elapsed_ms", elapsed.Milliseconds()).
			Err(err).
			Msg("released")
	}
	if outcome == nil {
		outcome = err
	}
	s.observer.SessionFinished(s.id, outcome, elapsed)
	return err
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// do runs fn under the session lock if the session is synced
func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSynced:
	case StateReleased:
		return ErrSessionReleased
	case StateIdle, StateBootstrapAsserted:
		return ErrSessionNotSynced
	default:
		return ErrSessionNotSynced
	}
	if err := fn(); err != nil {
		return s.fail(err)
	}
	return nil
}

// fail records err as the session outcome and attaches the wire trace to
// link-level failures. Callers hold s.mu.
func (s *Session) fail(err error) error {
	s.lastErr = err
	if s.log != nil {
		s.log.Error().Str("session", s.id).Str("state", s.state.String()).Err(err).Msg("operation failed")
	}

	var pe *ProtocolError
	var te *TransportError
	if (errors.As(err, &pe) || errors.As(err, &te)) && !HasTrace(err) {
		return s.link.Trace().WrapError(err)
	}
	return err
}

func (s *Session) progress(op string, done, total int, addr uint32) {
	if s.cfg.Progress != nil {
		s.cfg.Progress(Progress{Op: op, Done: done, Total: total, Address: addr})
	}
}

// Identify runs GET and GET_ID. The result is cached for the session.
func (s *Session) Identify(_ context.Context) (*Info, error) {
	var info *Info
	err := s.do(func() error {
		var err error
		info, err = s.identify()
		return err
	})
	return info, err
}

func (s *Session) identify() (*Info, error) {
	if s.info != nil {
		return s.info, nil
	}
	version, cmds, err := s.bl.Get()
	if err != nil {
		return nil, err
	}
	id, err := s.bl.GetID()
	if err != nil {
		return nil, err
	}
	s.info = &Info{Version: version, Commands: cmds, ChipID: id}
	if s.log != nil {
		s.log.Info().
			Str("session", s.id).
			Str("version", s.info.VersionString()).
			Str("commands", cmds.String()).
			Uint32("chip_id", id).
			Msg("identified target")
	}
	return s.info, nil
}

// GetVersion runs GET_VERSION
func (s *Session) GetVersion(_ context.Context) (version, option1, option2 byte, err error) {
	err = s.do(func() error {
		var err error
		version, option1, option2, err = s.bl.GetVersion()
		return err
	})
	return version, option1, option2, err
}

// WriteMemory writes data at base in pages of at most 256 bytes.
// Zero-length data fails before any transaction. Cancellation is checked
// before each page.
func (s *Session) WriteMemory(ctx context.Context, data []byte, base uint32) error {
	return s.do(func() error {
		return s.writeMemory(ctx, data, base)
	})
}

// ReadMemory reads exactly length bytes from base in pages of at most 256
// bytes.
func (s *Session) ReadMemory(ctx context.Context, length int, base uint32) ([]byte, error) {
	var out []byte
	err := s.do(func() error {
		var err error
		out, err = s.readMemory(ctx, length, base, OpRead)
		return err
	})
	return out, err
}

// Verify reads data back from base and compares it. The first difference
// is returned as a *VerifyMismatchError.
func (s *Session) Verify(ctx context.Context, data []byte, base uint32) error {
	return s.do(func() error {
		return s.verify(ctx, data, base)
	})
}

// EraseAll erases all of flash, with extended erase when the target
// supports it and the legacy global erase otherwise.
func (s *Session) EraseAll(ctx context.Context) error {
	return s.do(func() error {
		return s.eraseAll(ctx)
	})
}

func (s *Session) eraseAll(ctx context.Context) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	info, err := s.identify()
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info().Str("session", s.id).Msg("erasing flash")
	}
	switch {
	case info.ExtendedErase():
		err = s.bl.ExtendedErase(EraseMass)
	case info.Commands.Has(CmdErase):
		err = s.bl.Erase()
	default:
		return fmt.Errorf("%w: no erase command in %s", ErrCommandNotSupported, info.Commands)
	}
	if err != nil {
		return err
	}
	s.progress(OpErase, 1, 1, 0)
	return nil
}

// ErasePages erases individual flash pages
func (s *Session) ErasePages(ctx context.Context, pages []uint16) error {
	return s.do(func() error {
		if err := cancelled(ctx); err != nil {
			return err
		}
		info, err := s.identify()
		if err != nil {
			return err
		}
		if info.ExtendedErase() {
			return s.bl.ExtendedErasePages(pages)
		}
		legacy := make([]byte, len(pages))
		for i, p := range pages {
			if p > 0xFF {
				return fmt.Errorf("%w: page %d needs extended erase", ErrInvalidParameter, p)
			}
			legacy[i] = byte(p)
		}
		return s.bl.ErasePages(legacy)
	})
}

// Go starts the application at addr. The target leaves the bootloader, so
// the session is released afterwards.
func (s *Session) Go(_ context.Context, addr uint32) error {
	if err := s.do(func() error { return s.bl.Go(addr) }); err != nil {
		return err
	}
	return s.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := cancelled(ctx); err != nil || d <= 0 {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return cancelled(ctx)
	case <-timer.C:
		return nil
	}
}
