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

// Package uart provides the serial transport for the STM32 USART bootloader:
// 8 data bits, even parity, one stop bit.
package uart

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-stm32boot"
)

// Serial settings used by the STM32 USART bootloader
const (
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultParity      = "even"
	DefaultReadTimeout = 5 * time.Second
)

// ErrPortBusy is returned when another process holds the port lock
var ErrPortBusy = errors.New("serial port is in use by another process")

// Config describes how to open a serial port
type Config struct {
	// Port is the device path, e.g. /dev/ttyS3 or COM4
	Port string
	// Parity is "none", "even" or "odd"
	Parity      string
	BaudRate    int
	DataBits    int
	StopBits    int
	ReadTimeout time.Duration
	// Exclusive takes an advisory lock on the device node
	Exclusive bool
}

// DefaultConfig returns the 8E1 115200 baud settings the bootloader expects
func DefaultConfig(port string) Config {
	return Config{
		Port:        port,
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		Parity:      DefaultParity,
		ReadTimeout: DefaultReadTimeout,
		Exclusive:   true,
	}
}

func (c Config) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch strings.ToLower(c.Parity) {
	case "none", "":
		mode.Parity = serial.NoParity
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("%w: parity %q", stm32boot.ErrInvalidParameter, c.Parity)
	}

	switch c.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", stm32boot.ErrInvalidParameter, c.StopBits)
	}

	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", stm32boot.ErrInvalidParameter, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", stm32boot.ErrInvalidParameter, c.DataBits)
	}
	return mode, nil
}

// Transport implements stm32boot.Transport over a serial port.
type Transport struct {
	port     serial.Port
	lock     *os.File
	portName string
	mu       sync.Mutex
}

// New opens and configures the serial port described by cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no serial port given", stm32boot.ErrInvalidParameter)
	}
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	var lock *os.File
	if cfg.Exclusive {
		lock, err = lockPort(cfg.Port)
		if err != nil {
			return nil, err
		}
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		_ = unlockPort(lock)
		return nil, fmt.Errorf("failed to open UART port %s: %w", cfg.Port, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		_ = unlockPort(lock)
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t := newWithPort(port, cfg.Port)
	t.lock = lock
	return t, nil
}

func newWithPort(port serial.Port, name string) *Transport {
	return &Transport{port: port, portName: name}
}

// Write sends p and waits until it has left the output buffer
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	if n != len(p) {
		return n, nil
	}
	return n, t.drainWithRetry("write")
}

// Read returns up to len(p) bytes. It returns (0, nil) when the read
// timeout expires with nothing received.
func (t *Transport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("UART read failed: %w", err)
	}
	return n, nil
}

// FlushInput discards bytes received but not yet read
func (t *Transport) FlushInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART input flush failed: %w", err)
	}
	return nil
}

// FlushOutput discards bytes written but not yet transmitted
func (t *Transport) FlushOutput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("UART output flush failed: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.port.SetReadTimeout(timeout)
	if err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the port and releases the lock
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closeErr error
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			closeErr = fmt.Errorf("UART close failed: %w", err)
		}
		t.port = nil
	}
	lockErr := unlockPort(t.lock)
	t.lock = nil
	return errors.Join(closeErr, lockErr)
}

// Port returns the device path
func (t *Transport) Port() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() stm32boot.TransportType {
	return stm32boot.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
