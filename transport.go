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
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-stm32boot/internal/frame"
)

// Transport defines the byte link to the target's bootloader USART.
// Read must return (0, nil) when the read deadline passes with no data.
type Transport interface {
	// Write sends bytes to the target
	Write(p []byte) (int, error)

	// Read receives bytes; (0, nil) signals a read timeout
	Read(p []byte) (int, error)

	// FlushInput discards received but unread bytes
	FlushInput() error

	// FlushOutput discards written but untransmitted bytes
	FlushOutput() error

	// SetTimeout sets the read deadline for a single Read call
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// portNamer is implemented by transports that know their device name
type portNamer interface {
	Port() string
}

// Link adapts a Transport to the byte-level primitives of the protocol:
// whole writes, bounded reads, and acknowledgement handling. Every
// exchange is recorded in a bounded wire trace.
type Link struct {
	transport Transport
	trace     *TraceBuffer
	log       types.Logger
	observer  Observer
	port      string
}

// NewLink wraps transport. Logger, Observer and TraceSize are taken from cfg.
func NewLink(transport Transport, cfg Config) *Link {
	port := ""
	if pn, ok := transport.(portNamer); ok {
		port = pn.Port()
	}
	traceSize := cfg.TraceSize
	if traceSize <= 0 {
		traceSize = DefaultTraceSize
	}
	return &Link{
		transport: transport,
		trace:     NewTraceBuffer(string(transport.Type()), port, traceSize),
		log:       cfg.Logger,
		observer:  observerOrNop(cfg.Observer),
		port:      port,
	}
}

// Trace returns the wire trace collected so far
func (l *Link) Trace() *TraceBuffer {
	return l.trace
}

// Transport returns the wrapped transport
func (l *Link) Transport() Transport {
	return l.transport
}

// WriteBytes writes all of data. A short write is a TransportError.
func (l *Link) WriteBytes(data []byte) error {
	l.trace.RecordTX(data, "")
	if l.log != nil {
		l.log.Trace().Str("port", l.port).Str("tx", formatHexBytes(data)).Msg("write")
	}

	n, err := l.transport.Write(data)
	if err != nil {
		return wrapTransportError("write", l.port, err)
	}
	if n != len(data) {
		return NewTransportWriteError("write", l.port)
	}
	return nil
}

// WriteByte writes a single byte
func (l *Link) WriteByte(b byte) error {
	return l.WriteBytes([]byte{b})
}

// ReadBytes reads up to n bytes, stopping early when a read times out.
// A result shorter than n is not an error; callers decide what it means.
func (l *Link) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := l.transport.Read(buf[got:])
		if err != nil {
			l.trace.RecordRX(buf[:got], "read error")
			return buf[:got], wrapTransportError("read", l.port, err)
		}
		if m == 0 {
			break
		}
		got += m
	}

	if got > 0 {
		l.trace.RecordRX(buf[:got], "")
	}
	if got < n {
		l.trace.RecordTimeout(timeoutNote(got))
	}
	if l.log != nil {
		l.log.Trace().Str("port", l.port).Str("rx", formatHexBytes(buf[:got])).Int("want", n).Msg("read")
	}
	return buf[:got], nil
}

// NextByte reads one byte; ok is false when the read timed out
func (l *Link) NextByte() (b byte, ok bool, err error) {
	data, err := l.ReadBytes(1)
	if err != nil {
		return 0, false, err
	}
	if len(data) == 0 {
		return 0, false, nil
	}
	return data[0], true, nil
}

// ReadExact reads exactly n bytes; anything less is a ShortRead
func (l *Link) ReadExact(n int, context string) ([]byte, error) {
	data, err := l.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	if len(data) < n {
		return nil, &ProtocolError{Kind: KindShortRead, Context: context, Got: len(data), Want: n}
	}
	return data, nil
}

// AwaitAck reads one byte and classifies it. Context names the ack point
// and is carried verbatim in the returned ProtocolError.
func (l *Link) AwaitAck(context string) error {
	b, ok, err := l.NextByte()
	if err != nil {
		l.observer.AckReceived(context, err)
		return err
	}

	switch {
	case !ok:
		err = &ProtocolError{Kind: KindAckTimeout, Context: context}
	case b == frame.Ack:
		err = nil
	case b == frame.Nack:
		err = &ProtocolError{Kind: KindNacked, Context: context}
	default:
		err = &ProtocolError{Kind: KindUnexpectedByte, Context: context, Value: b}
	}

	l.observer.AckReceived(context, err)
	if l.log != nil {
		l.log.Trace().Str("port", l.port).Str("context", context).Err(err).Msg("ack")
	}
	return err
}

// Flush discards pending bytes in both directions
func (l *Link) Flush() error {
	if err := l.transport.FlushInput(); err != nil {
		return wrapTransportError("flush input", l.port, err)
	}
	if err := l.transport.FlushOutput(); err != nil {
		return wrapTransportError("flush output", l.port, err)
	}
	return nil
}

// SetTimeout changes the read deadline of the underlying transport
func (l *Link) SetTimeout(timeout time.Duration) error {
	if err := l.transport.SetTimeout(timeout); err != nil {
		return wrapTransportError("set timeout", l.port, err)
	}
	return nil
}

func timeoutNote(got int) string {
	if got == 0 {
		return "no data"
	}
	return "short read"
}
