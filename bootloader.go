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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-stm32boot/internal/frame"
)

// EraseMode selects a special extended erase
type EraseMode uint16

const (
	// EraseMass erases all of flash
	EraseMass EraseMode = frame.ExtendedEraseMass
	// EraseBank1 erases the first flash bank
	EraseBank1 EraseMode = frame.ExtendedEraseBank1
	// EraseBank2 erases the second flash bank
	EraseBank2 EraseMode = frame.ExtendedEraseBank2
)

// String returns the mode name
func (m EraseMode) String() string {
	switch m {
	case EraseMass:
		return "mass"
	case EraseBank1:
		return "bank1"
	case EraseBank2:
		return "bank2"
	default:
		return fmt.Sprintf("EraseMode(0x%04X)", uint16(m))
	}
}

// Limits on erase page lists
const (
	// MaxExtendedErasePages is the longest page list ExtendedErasePages accepts
	MaxExtendedErasePages = int(frame.ExtendedEraseSpecial)
	// MaxErasePages is the longest page list ErasePages accepts
	MaxErasePages = 255
)

// Bootloader is the command engine. Each method runs one complete command
// transaction and fails fast: the first acknowledgement failure is returned
// and nothing is retried. Bootloader keeps no state between commands.
type Bootloader struct {
	link         *Link
	log          types.Logger
	observer     Observer
	framing      Framing
	readTimeout  time.Duration
	eraseTimeout time.Duration
}

// NewBootloader creates a command engine over link
func NewBootloader(link *Link, cfg Config) (*Bootloader, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bootloader{
		link:         link,
		log:          cfg.Logger,
		observer:     observerOrNop(cfg.Observer),
		framing:      cfg.Framing,
		readTimeout:  cfg.ReadTimeout,
		eraseTimeout: cfg.EraseTimeout,
	}, nil
}

// Framing returns the command framing in use
func (b *Bootloader) Framing() Framing {
	return b.framing
}

// SendCommand writes the framed opcode and waits for its acknowledgement.
// The ack context is "cmd " + context; an empty context uses the hex opcode.
func (b *Bootloader) SendCommand(cmd Command, context string) error {
	framed, err := b.framing.selfCheck(byte(cmd))
	if err != nil {
		return err
	}
	if context == "" {
		context = fmt.Sprintf("0x%02X", byte(cmd))
	}

	if b.log != nil {
		b.log.Debug().Str("command", cmd.String()).Str("framing", b.framing.String()).Msg("send command")
	}
	b.observer.CommandSent(cmd)

	if err := b.link.WriteBytes(framed); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return b.link.AwaitAck("cmd " + context)
}

// Get returns the bootloader version and the supported command set
func (b *Bootloader) Get() (byte, CommandSet, error) {
	if err := b.SendCommand(CmdGet, "get"); err != nil {
		return 0, nil, err
	}
	n, err := b.link.ReadExact(1, "get: length")
	if err != nil {
		return 0, nil, err
	}
	body, err := b.link.ReadExact(int(n[0])+1, "get: data")
	if err != nil {
		return 0, nil, err
	}
	if err := b.link.AwaitAck("end get"); err != nil {
		return 0, nil, err
	}
	return body[0], NewCommandSet(body[1:]), nil
}

// GetVersion returns the bootloader version and the two option bytes
func (b *Bootloader) GetVersion() (version, option1, option2 byte, err error) {
	if err := b.SendCommand(CmdGetVersion, "get_version"); err != nil {
		return 0, 0, 0, err
	}
	body, err := b.link.ReadExact(3, "get_version: data")
	if err != nil {
		return 0, 0, 0, err
	}
	if err := b.link.AwaitAck("end get_version"); err != nil {
		return 0, 0, 0, err
	}
	return body[0], body[1], body[2], nil
}

// GetID returns the product ID, big-endian as sent by the target
func (b *Bootloader) GetID() (uint64, error) {
	if err := b.SendCommand(CmdGetID, "get_id"); err != nil {
		return 0, err
	}
	n, err := b.link.ReadExact(1, "get_id: length")
	if err != nil {
		return 0, err
	}
	body, err := b.link.ReadExact(int(n[0])+1, "get_id: data")
	if err != nil {
		return 0, err
	}
	if err := b.link.AwaitAck("end get_id"); err != nil {
		return 0, err
	}
	if len(body) > 8 {
		return 0, &ProtocolError{Kind: KindInvalidResponse, Context: fmt.Sprintf("get_id: %d byte id", len(body))}
	}

	var id uint64
	for _, v := range body {
		id = id<<8 | uint64(v)
	}
	return id, nil
}

// WriteMemoryPage writes 1..256 bytes at addr in one transaction.
// The length is checked before anything is sent.
func (b *Bootloader) WriteMemoryPage(addr uint32, data []byte) error {
	if err := checkPageLength(len(data)); err != nil {
		return err
	}
	if err := b.SendCommand(CmdWriteMemory, "write_memory"); err != nil {
		return err
	}
	if err := b.link.WriteBytes(frame.EncodeAddress(addr)); err != nil {
		return err
	}
	if err := b.link.AwaitAck("write_memory: address"); err != nil {
		return err
	}

	// N-1, data, checksum of both
	buf := frame.GetBuffer(len(data) + 2)
	defer frame.PutBuffer(buf)
	buf[0] = byte(len(data) - 1)
	copy(buf[1:], data)
	buf[len(buf)-1] = frame.Checksum(buf[:len(buf)-1])

	if err := b.link.WriteBytes(buf); err != nil {
		return err
	}
	if err := b.link.AwaitAck("end write_memory"); err != nil {
		return err
	}
	b.observer.PageTransferred(DirectionWrite, addr, len(data))
	return nil
}

// ReadMemoryPage reads 1..256 bytes from addr in one transaction.
// The length is checked before anything is sent.
func (b *Bootloader) ReadMemoryPage(addr uint32, length int) ([]byte, error) {
	if err := checkPageLength(length); err != nil {
		return nil, err
	}
	if err := b.SendCommand(CmdReadMemory, "read_memory"); err != nil {
		return nil, err
	}
	if err := b.link.WriteBytes(frame.EncodeAddress(addr)); err != nil {
		return nil, err
	}
	if err := b.link.AwaitAck("read_memory: address"); err != nil {
		return nil, err
	}

	// the length frame is checksummed under either framing
	if err := b.link.WriteBytes(frame.WithChecksum([]byte{byte(length - 1)})); err != nil {
		return nil, err
	}
	if err := b.link.AwaitAck("read_memory: length"); err != nil {
		return nil, err
	}

	data, err := b.link.ReadExact(length, "read_memory: data")
	if err != nil {
		return nil, err
	}
	b.observer.PageTransferred(DirectionRead, addr, length)
	return data, nil
}

// ExtendedErase runs a special extended erase (mass or bank)
func (b *Bootloader) ExtendedErase(mode EraseMode) error {
	switch mode {
	case EraseMass, EraseBank1, EraseBank2:
	default:
		return fmt.Errorf("%w: erase mode %s", ErrInvalidParameter, mode)
	}
	if err := b.SendCommand(CmdExtendedErase, "extended_erase"); err != nil {
		return err
	}

	var code [2]byte
	binary.BigEndian.PutUint16(code[:], uint16(mode))
	return b.awaitErase(frame.WithChecksum(code[:]), "extended_erase")
}

// ExtendedErasePages erases the listed flash pages with the 0x44 command
func (b *Bootloader) ExtendedErasePages(pages []uint16) error {
	if len(pages) == 0 || len(pages) > MaxExtendedErasePages {
		return fmt.Errorf("%w: %d pages", ErrInvalidParameter, len(pages))
	}
	if err := b.SendCommand(CmdExtendedErase, "extended_erase"); err != nil {
		return err
	}

	payload := make([]byte, 2, 2+2*len(pages))
	binary.BigEndian.PutUint16(payload, uint16(len(pages)-1)) //nolint:gosec // Bounded above
	for _, p := range pages {
		payload = binary.BigEndian.AppendUint16(payload, p)
	}
	return b.awaitErase(frame.WithChecksum(payload), "extended_erase: pages")
}

// Erase runs the legacy 0x43 global erase
func (b *Bootloader) Erase() error {
	if err := b.SendCommand(CmdErase, "erase"); err != nil {
		return err
	}
	global, err := b.framing.selfCheck(frame.GlobalErase)
	if err != nil {
		return err
	}
	return b.awaitErase(global, "erase")
}

// ErasePages erases the listed flash pages with the legacy 0x43 command
func (b *Bootloader) ErasePages(pages []byte) error {
	if len(pages) == 0 || len(pages) > MaxErasePages {
		return fmt.Errorf("%w: %d pages", ErrInvalidParameter, len(pages))
	}
	if err := b.SendCommand(CmdErase, "erase"); err != nil {
		return err
	}

	payload := make([]byte, 0, 1+len(pages))
	payload = append(payload, byte(len(pages)-1))
	payload = append(payload, pages...)
	return b.awaitErase(frame.WithChecksum(payload), "erase: pages")
}

// Go makes the target jump to the application at addr
func (b *Bootloader) Go(addr uint32) error {
	if err := b.SendCommand(CmdGo, "go"); err != nil {
		return err
	}
	if err := b.link.WriteBytes(frame.EncodeAddress(addr)); err != nil {
		return err
	}
	return b.link.AwaitAck("go: address")
}

// awaitErase sends an erase selector and waits for the ack under the
// erase deadline, restoring the read deadline afterwards.
func (b *Bootloader) awaitErase(payload []byte, context string) (err error) {
	if err := b.link.SetTimeout(b.eraseTimeout); err != nil {
		return err
	}
	defer func() {
		if restoreErr := b.link.SetTimeout(b.readTimeout); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	if err := b.link.WriteBytes(payload); err != nil {
		return err
	}
	return b.link.AwaitAck(context)
}

func checkPageLength(n int) error {
	if n < 1 || n > frame.MaxPageSize {
		return &PageLengthError{Length: n}
	}
	return nil
}
