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
	"io"
	"runtime"
	"slices"
	"syscall"
)

// Sentinel errors, grouped by who can fix them
var (
	// The target answered an ack point badly, or not at all
	ErrAckTimeout          = errors.New("ack timeout")
	ErrNacked              = errors.New("nacked")
	ErrUnexpectedByte      = errors.New("unexpected byte")
	ErrShortRead           = errors.New("short read")
	ErrInvalidResponse     = errors.New("invalid response format")
	ErrVerifyMismatch      = errors.New("verify mismatch")
	ErrCommandNotSupported = errors.New("command not supported by bootloader")

	// The byte link failed
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportClosed  = errors.New("transport is closed")

	// The caller passed something the protocol cannot carry
	ErrInvalidPageLength = errors.New("invalid page length")
	ErrEmptyData         = errors.New("empty data")
	ErrAddressOverflow   = errors.New("address range overflows 32 bits")
	ErrFramingUnset      = errors.New("command framing not configured")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrLineMissing       = errors.New("boot-select and reset lines are required")

	// The session is no longer usable
	ErrCancelled        = errors.New("cancelled")
	ErrSessionNotSynced = errors.New("session not synced")
	ErrSessionReleased  = errors.New("session released")
)

// ErrorType says whether a transport failure is worth a new session
type ErrorType int

const (
	// ErrorTypeTransient failures may clear on a new session
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent failures mean the device is gone
	ErrorTypePermanent
	// ErrorTypeTimeout failures are deadlines hit below the protocol
	ErrorTypeTimeout
)

// TransportError is an I/O failure of the byte link, tagged with the
// operation and device it happened on
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Port + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind classifies a ProtocolError
type ProtocolErrorKind int

const (
	// KindAckTimeout means no byte arrived before the read deadline
	KindAckTimeout ProtocolErrorKind = iota
	// KindNacked means the target answered NACK
	KindNacked
	// KindUnexpectedByte means the target answered neither ACK nor NACK
	KindUnexpectedByte
	// KindShortRead means fewer bytes arrived than the command returns
	KindShortRead
	// KindInvalidResponse means the reply was well timed but malformed
	KindInvalidResponse
)

// String returns the kind as printed by the CLI
func (k ProtocolErrorKind) String() string {
	switch k {
	case KindAckTimeout:
		return "AckTimeout"
	case KindNacked:
		return "Nacked"
	case KindUnexpectedByte:
		return "UnexpectedByte"
	case KindShortRead:
		return "ShortRead"
	case KindInvalidResponse:
		return "InvalidResponse"
	default:
		return fmt.Sprintf("ProtocolErrorKind(%d)", int(k))
	}
}

// ProtocolError reports a failed acknowledgement or response read.
// Context names the ack point, e.g. "write_memory: address".
type ProtocolError struct {
	Context string
	Kind    ProtocolErrorKind
	Got     int  // bytes received, for short reads
	Want    int  // bytes expected, for short reads
	Value   byte // offending byte, for unexpected bytes
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case KindUnexpectedByte:
		return fmt.Sprintf("%s 0x%02X: %s", e.Kind, e.Value, e.Context)
	case KindShortRead:
		return fmt.Sprintf("%s (%d of %d bytes): %s", e.Kind, e.Got, e.Want, e.Context)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
}

// Unwrap returns the sentinel matching Kind so errors.Is works
func (e *ProtocolError) Unwrap() error {
	switch e.Kind {
	case KindAckTimeout:
		return ErrAckTimeout
	case KindNacked:
		return ErrNacked
	case KindUnexpectedByte:
		return ErrUnexpectedByte
	case KindShortRead:
		return ErrShortRead
	case KindInvalidResponse:
		return ErrInvalidResponse
	default:
		return nil
	}
}

// PageLengthError reports a page outside 1..256 bytes
type PageLengthError struct {
	Length int
}

func (e *PageLengthError) Error() string {
	return fmt.Sprintf("invalid page length %d: must be 1..%d", e.Length, MaxPageSize)
}

func (*PageLengthError) Unwrap() error {
	return ErrInvalidPageLength
}

// VerifyMismatchError reports the first byte that read back differently
type VerifyMismatchError struct {
	Address  uint32
	Expected byte
	Actual   byte
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("verify mismatch at 0x%08X: wrote 0x%02X, read 0x%02X", e.Address, e.Expected, e.Actual)
}

func (*VerifyMismatchError) Unwrap() error {
	return ErrVerifyMismatch
}

// IsRetryable returns true if running the whole session again may succeed.
// Nothing inside a session retries; this only drives RetryWithConfig.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var retryable = []error{
	ErrAckTimeout,
	ErrNacked,
	ErrUnexpectedByte,
	ErrShortRead,
	ErrTransportTimeout,
	ErrTransportRead,
	ErrTransportWrite,
}

// IsFatal returns true if the link itself is gone, e.g. an unplugged
// USB-UART bridge. A fatal error may still be retryable once the device
// comes back.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}
	return deviceGone(err) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe)
}

var goneErrnos = []syscall.Errno{syscall.EIO, syscall.ENXIO, syscall.ENODEV}

// ERROR_ACCESS_DENIED, ERROR_GEN_FAILURE and ERROR_NO_SUCH_DEVICE
var goneErrnosWindows = []syscall.Errno{5, 31, 433}

func deviceGone(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	if slices.Contains(goneErrnos, errno) {
		return true
	}
	return runtime.GOOS == "windows" && slices.Contains(goneErrnosWindows, errno)
}

// NewTransportError builds a TransportError; only permanent ones are not
// retryable
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTransportWriteError reports a short or failed write
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError reports a failed read
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// wrapTransportError tags an I/O error from the transport. A TransportError
// passes through unchanged; one nested under other context keeps that context
// and inherits the inner classification.
func wrapTransportError(op, port string, err error) *TransportError {
	if te, ok := err.(*TransportError); ok { //nolint:errorlint // only the top level passes through
		return te
	}
	var inner *TransportError
	if errors.As(err, &inner) {
		te := NewTransportError(op, port, err, inner.Type)
		te.Retryable = inner.Retryable
		return te
	}
	errType := ErrorTypeTransient
	if IsFatal(err) {
		errType = ErrorTypePermanent
	}
	return NewTransportError(op, port, err, errType)
}
