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

// Package testing provides test utilities including a wire-level simulator of
// the STM32 USART system bootloader.
//
// The VirtualBootloader type implements io.ReadWriter and follows the target
// side of the protocol byte by byte, as described in application note AN3155:
// - Activation: 0x7F autobaud byte answered with ACK
// - Command frame: opcode plus self-check byte
// - Address frame: 4 bytes MSB first plus XOR checksum
// - Data frames: N-1 length byte, payload and XOR checksum
package testing

import (
	"errors"
	"time"

	"github.com/ZaparooProject/go-stm32boot/internal/frame"
	"github.com/ZaparooProject/go-stm32boot/internal/syncutil"
)

// Framing mirrors stm32boot.Framing to avoid import cycle
type Framing int

const (
	// FramingUnset accepts nothing; every command is NACKed
	FramingUnset Framing = iota
	// FramingComplement expects {cmd, cmd^0xFF}
	FramingComplement
	// FramingChecksum expects {cmd, cmd}
	FramingChecksum
)

// Command opcodes understood by the simulator (AN3155 §2)
const (
	CmdGet           byte = 0x00
	CmdGetVersion    byte = 0x01
	CmdGetID         byte = 0x02
	CmdReadMemory    byte = 0x11
	CmdGo            byte = 0x21
	CmdWriteMemory   byte = 0x31
	CmdErase         byte = 0x43
	CmdExtendedErase byte = 0x44
)

var errClosed = errors.New("virtual bootloader closed")

// Simulator defaults: an STM32F10x high-density part
const (
	DefaultVersion   byte   = 0x31
	DefaultChipID    uint16 = 0x0414
	DefaultFlashBase uint32 = 0x08000000
	DefaultPageSize         = 2048
	DefaultBankSize         = 512 * 1024
)

// AckPoint identifies where in a transaction an acknowledgement is sent
type AckPoint int

const (
	// AckSync answers the 0x7F activation byte
	AckSync AckPoint = iota
	// AckCommand answers the opcode frame
	AckCommand
	// AckAddress answers an address frame
	AckAddress
	// AckPayload answers a length, data or erase selector frame
	AckPayload
	// AckEnd closes GET, GET_VERSION and GET_ID responses
	AckEnd
)

// String returns the ack point name
func (p AckPoint) String() string {
	switch p {
	case AckSync:
		return "sync"
	case AckCommand:
		return "command"
	case AckAddress:
		return "address"
	case AckPayload:
		return "payload"
	case AckEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Fault replaces the acknowledgement at a given point.
// Occurrence is 1-based and counts acks at that point; 0 matches all of them.
type Fault struct {
	Point      AckPoint
	Occurrence int
	Reply      byte
	Silent     bool
}

// PageWrite records one accepted WRITE_MEMORY transaction
type PageWrite struct {
	Data    []byte
	Address uint32
}

// PageRead records one accepted READ_MEMORY transaction
type PageRead struct {
	Address uint32
	Length  int
}

// EraseOp records one accepted erase transaction
type EraseOp struct {
	Pages    []uint16
	Special  uint16
	Extended bool
	Global   bool
}

type simState int

const (
	stateSync simState = iota
	stateCommand
	stateReadAddr
	stateReadLen
	stateWriteAddr
	stateWriteData
	stateGoAddr
	stateExtErase
	stateErase
	stateExited
)

// VirtualBootloader simulates the STM32 system bootloader at the byte level.
// Host writes are parsed immediately and replies are queued for Read, which
// returns (0, nil) when nothing is pending, the same way a serial port
// reports a read timeout.
type VirtualBootloader struct {
	memory     map[uint32]byte
	ackCounts  map[AckPoint]int
	jumpAddr   *uint32
	faults     []Fault
	commands   []byte
	chipID     []byte
	received   []byte
	pending    []byte
	out        []byte
	commandLog []byte
	writes     []PageWrite
	reads      []PageRead
	erases     []EraseOp
	addr       uint32
	flashBase  uint32
	pageSize   int
	bankSize   int
	resets     int
	readDelay  time.Duration
	mu         syncutil.Mutex
	state      simState
	framing    Framing
	version    byte
	silent     bool
	closed     bool
}

// NewVirtualBootloader creates a simulator that expects the given framing.
// It starts waiting for the activation byte, as after a reset with the
// boot-select line asserted.
func NewVirtualBootloader(framing Framing) *VirtualBootloader {
	return &VirtualBootloader{
		framing:   framing,
		version:   DefaultVersion,
		commands:  []byte{CmdGet, CmdGetID, CmdReadMemory, CmdWriteMemory, CmdExtendedErase},
		chipID:    []byte{byte(DefaultChipID >> 8), byte(DefaultChipID & 0xFF)},
		memory:    make(map[uint32]byte),
		ackCounts: make(map[AckPoint]int),
		flashBase: DefaultFlashBase,
		pageSize:  DefaultPageSize,
		bankSize:  DefaultBankSize,
		state:     stateSync,
	}
}

// Write implements io.Writer - receives bytes from the host.
func (v *VirtualBootloader) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errClosed
	}
	v.received = append(v.received, data...)
	if v.silent {
		return len(data), nil
	}
	for _, b := range data {
		v.feed(b)
	}
	return len(data), nil
}

// Read implements io.Reader - returns queued target replies.
func (v *VirtualBootloader) Read(buf []byte) (int, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, errClosed
	}
	delay := v.readDelay
	if len(v.out) == 0 {
		v.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		return 0, nil
	}
	n := copy(buf, v.out)
	v.out = v.out[n:]
	v.mu.Unlock()
	return n, nil
}

// FlushInput discards replies the host has not read yet
func (v *VirtualBootloader) FlushInput() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.out = nil
	return nil
}

// FlushOutput is a no-op; writes are consumed synchronously
func (*VirtualBootloader) FlushOutput() error {
	return nil
}

// SetTimeout sets how long an empty Read blocks before reporting no data
func (v *VirtualBootloader) SetTimeout(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readDelay = timeout
	return nil
}

// Close marks the simulator closed; later reads and writes fail
func (v *VirtualBootloader) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Reset simulates a target reset. With bootSelected the target comes up in
// the bootloader waiting for 0x7F, otherwise it runs the application and
// ignores the link.
func (v *VirtualBootloader) Reset(bootSelected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resets++
	v.pending = nil
	v.out = nil
	if bootSelected {
		v.state = stateSync
	} else {
		v.state = stateExited
	}
}

// SetSilent makes the target swallow every byte without replying
func (v *VirtualBootloader) SetSilent(silent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silent = silent
}

// SetVersion sets the bootloader version reported by GET
func (v *VirtualBootloader) SetVersion(version byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version = version
}

// SetCommands sets the supported command set; others are NACKed
func (v *VirtualBootloader) SetCommands(cmds ...byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append([]byte(nil), cmds...)
}

// SetChipID sets the raw product ID bytes returned by GET_ID
func (v *VirtualBootloader) SetChipID(id ...byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chipID = append([]byte(nil), id...)
}

// SetMemory preloads target memory
func (v *VirtualBootloader) SetMemory(addr uint32, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, b := range data {
		v.memory[addr+uint32(i)] = b //nolint:gosec // Test helper, lengths are small
	}
}

// Memory returns length bytes at addr; unwritten cells read as erased (0xFF)
func (v *VirtualBootloader) Memory(addr uint32, length int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readMemory(addr, length)
}

// AddFault registers an acknowledgement fault
func (v *VirtualBootloader) AddFault(f Fault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults = append(v.faults, f)
}

// Writes returns the accepted WRITE_MEMORY transactions in order
func (v *VirtualBootloader) Writes() []PageWrite {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PageWrite, len(v.writes))
	for i, w := range v.writes {
		out[i] = PageWrite{Address: w.Address, Data: append([]byte(nil), w.Data...)}
	}
	return out
}

// Reads returns the accepted READ_MEMORY transactions in order
func (v *VirtualBootloader) Reads() []PageRead {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]PageRead(nil), v.reads...)
}

// Erases returns the accepted erase transactions in order
func (v *VirtualBootloader) Erases() []EraseOp {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]EraseOp(nil), v.erases...)
}

// CommandLog returns every opcode that passed framing validation
func (v *VirtualBootloader) CommandLog() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commandLog...)
}

// Received returns every byte the host has written
func (v *VirtualBootloader) Received() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.received...)
}

// ClearReceived drops the recorded host bytes
func (v *VirtualBootloader) ClearReceived() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.received = nil
}

// ResetCount returns how many resets the target has seen
func (v *VirtualBootloader) ResetCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

// JumpAddress returns the GO target, if a GO command completed
func (v *VirtualBootloader) JumpAddress() (uint32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jumpAddr == nil {
		return 0, false
	}
	return *v.jumpAddr, true
}

// InBootloader reports whether the target is still running the bootloader
func (v *VirtualBootloader) InBootloader() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state != stateExited
}

// HasPendingResponse returns true if there are unread reply bytes
func (v *VirtualBootloader) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.out) > 0
}

func (v *VirtualBootloader) feed(b byte) {
	switch v.state {
	case stateExited:
		return
	case stateSync:
		if b == frame.Sync && v.ack(AckSync) {
			v.state = stateCommand
		}
		return
	default:
	}

	v.pending = append(v.pending, b)
	switch v.state {
	case stateCommand:
		v.feedCommand()
	case stateReadAddr, stateWriteAddr, stateGoAddr:
		v.feedAddress()
	case stateReadLen:
		v.feedReadLength()
	case stateWriteData:
		v.feedWriteData()
	case stateExtErase:
		v.feedExtendedErase()
	case stateErase:
		v.feedErase()
	case stateSync, stateExited:
	}
}

// selfCheckOK validates the byte following an opcode or the legacy global
// erase marker according to the configured framing.
func (v *VirtualBootloader) selfCheckOK(value, check byte) bool {
	switch v.framing {
	case FramingComplement:
		return check == value^0xFF
	case FramingChecksum:
		return check == value
	default:
		return false
	}
}

func (v *VirtualBootloader) supports(cmd byte) bool {
	for _, c := range v.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

func (v *VirtualBootloader) feedCommand() {
	if len(v.pending) == 1 {
		// A repeated activation byte is refused once synced
		if v.pending[0] == frame.Sync {
			v.pending = v.pending[:0]
			v.out = append(v.out, frame.Nack)
		}
		return
	}
	cmd, check := v.pending[0], v.pending[1]
	v.pending = v.pending[:0]

	if !v.selfCheckOK(cmd, check) || !v.supports(cmd) {
		v.out = append(v.out, frame.Nack)
		return
	}
	v.commandLog = append(v.commandLog, cmd)
	if !v.ack(AckCommand) {
		return
	}

	switch cmd {
	case CmdGet:
		v.out = append(v.out, byte(len(v.commands)), v.version)
		v.out = append(v.out, v.commands...)
		v.ack(AckEnd)
	case CmdGetVersion:
		v.out = append(v.out, v.version, 0x00, 0x00)
		v.ack(AckEnd)
	case CmdGetID:
		v.out = append(v.out, byte(len(v.chipID)-1))
		v.out = append(v.out, v.chipID...)
		v.ack(AckEnd)
	case CmdReadMemory:
		v.state = stateReadAddr
	case CmdWriteMemory:
		v.state = stateWriteAddr
	case CmdGo:
		v.state = stateGoAddr
	case CmdExtendedErase:
		v.state = stateExtErase
	case CmdErase:
		v.state = stateErase
	}
}

func (v *VirtualBootloader) feedAddress() {
	if len(v.pending) < frame.AddressFrameLength {
		return
	}
	addrFrame := v.pending
	v.pending = nil
	next := v.state
	v.state = stateCommand

	if frame.Checksum(addrFrame) != 0 {
		v.out = append(v.out, frame.Nack)
		return
	}
	v.addr = uint32(addrFrame[0])<<24 | uint32(addrFrame[1])<<16 | uint32(addrFrame[2])<<8 | uint32(addrFrame[3])
	if !v.ack(AckAddress) {
		return
	}

	switch next {
	case stateReadAddr:
		v.state = stateReadLen
	case stateWriteAddr:
		v.state = stateWriteData
	case stateGoAddr:
		jump := v.addr
		v.jumpAddr = &jump
		v.state = stateExited
	default:
	}
}

func (v *VirtualBootloader) feedReadLength() {
	if len(v.pending) < 2 {
		return
	}
	n, check := v.pending[0], v.pending[1]
	v.pending = nil
	v.state = stateCommand

	if frame.Checksum([]byte{n, check}) != 0 {
		v.out = append(v.out, frame.Nack)
		return
	}
	if !v.ack(AckPayload) {
		return
	}
	length := int(n) + 1
	v.reads = append(v.reads, PageRead{Address: v.addr, Length: length})
	v.out = append(v.out, v.readMemory(v.addr, length)...)
}

func (v *VirtualBootloader) feedWriteData() {
	need := int(v.pending[0]) + 3
	if len(v.pending) < need {
		return
	}
	dataFrame := v.pending
	v.pending = nil
	v.state = stateCommand

	if frame.Checksum(dataFrame) != 0 {
		v.out = append(v.out, frame.Nack)
		return
	}
	data := append([]byte(nil), dataFrame[1:need-1]...)
	for i, b := range data {
		v.memory[v.addr+uint32(i)] = b //nolint:gosec // At most 256 bytes
	}
	v.writes = append(v.writes, PageWrite{Address: v.addr, Data: data})
	v.ack(AckPayload)
}

func (v *VirtualBootloader) feedExtendedErase() {
	if len(v.pending) < 2 {
		return
	}
	code := uint16(v.pending[0])<<8 | uint16(v.pending[1])

	var need int
	if code >= frame.ExtendedEraseSpecial {
		need = 3
	} else {
		need = 2 + 2*(int(code)+1) + 1
	}
	if len(v.pending) < need {
		return
	}
	payload := v.pending
	v.pending = nil
	v.state = stateCommand

	if frame.Checksum(payload) != 0 {
		v.out = append(v.out, frame.Nack)
		return
	}

	op := EraseOp{Extended: true}
	switch {
	case code == frame.ExtendedEraseMass:
		op.Special = code
		v.eraseRange(v.flashBase, 0)
	case code == frame.ExtendedEraseBank1:
		op.Special = code
		v.eraseRange(v.flashBase, v.bankSize)
	case code == frame.ExtendedEraseBank2:
		op.Special = code
		v.eraseRange(v.flashBase+uint32(v.bankSize), v.bankSize) //nolint:gosec // Fixed simulator size
	case code >= frame.ExtendedEraseSpecial:
		v.out = append(v.out, frame.Nack)
		return
	default:
		for i := 2; i < need-1; i += 2 {
			page := uint16(payload[i])<<8 | uint16(payload[i+1])
			op.Pages = append(op.Pages, page)
			v.erasePage(int(page))
		}
	}
	v.erases = append(v.erases, op)
	v.ack(AckPayload)
}

func (v *VirtualBootloader) feedErase() {
	if v.pending[0] == frame.GlobalErase {
		if len(v.pending) < 2 {
			return
		}
		check := v.pending[1]
		v.pending = nil
		v.state = stateCommand
		if !v.selfCheckOK(frame.GlobalErase, check) {
			v.out = append(v.out, frame.Nack)
			return
		}
		v.eraseRange(v.flashBase, 0)
		v.erases = append(v.erases, EraseOp{Global: true})
		v.ack(AckPayload)
		return
	}

	need := 1 + int(v.pending[0]) + 1 + 1
	if len(v.pending) < need {
		return
	}
	payload := v.pending
	v.pending = nil
	v.state = stateCommand

	if frame.Checksum(payload) != 0 {
		v.out = append(v.out, frame.Nack)
		return
	}
	op := EraseOp{}
	for _, p := range payload[1 : need-1] {
		op.Pages = append(op.Pages, uint16(p))
		v.erasePage(int(p))
	}
	v.erases = append(v.erases, op)
	v.ack(AckPayload)
}

// ack queues an ACK for point p unless a fault replaces it.
// Returns false when the transaction was aborted by a fault.
func (v *VirtualBootloader) ack(p AckPoint) bool {
	v.ackCounts[p]++
	count := v.ackCounts[p]
	for _, f := range v.faults {
		if f.Point != p || (f.Occurrence != 0 && f.Occurrence != count) {
			continue
		}
		if !f.Silent {
			v.out = append(v.out, f.Reply)
		}
		v.pending = nil
		if p != AckSync {
			v.state = stateCommand
		}
		return false
	}
	v.out = append(v.out, frame.Ack)
	return true
}

func (v *VirtualBootloader) readMemory(addr uint32, length int) []byte {
	out := make([]byte, length)
	for i := range out {
		b, ok := v.memory[addr+uint32(i)] //nolint:gosec // At most 256 bytes
		if !ok {
			b = 0xFF
		}
		out[i] = b
	}
	return out
}

func (v *VirtualBootloader) erasePage(page int) {
	v.eraseRange(v.flashBase+uint32(page*v.pageSize), v.pageSize) //nolint:gosec // Page numbers are 16 bit
}

// eraseRange drops cells in [start, start+size); size 0 clears everything
func (v *VirtualBootloader) eraseRange(start uint32, size int) {
	if size == 0 {
		clear(v.memory)
		return
	}
	end := uint64(start) + uint64(size) //nolint:gosec // size is positive
	for a := range v.memory {
		if uint64(a) >= uint64(start) && uint64(a) < end {
			delete(v.memory, a)
		}
	}
}
