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

package uart

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port present on the host
type PortInfo struct {
	// Path is the device path, e.g. /dev/ttyUSB0 or COM3
	Path string
	// VIDPID is the USB vendor and product ID as "VVVV:PPPP", empty for
	// on-board UARTs
	VIDPID string
	// Product is the USB product string, if any
	Product string
	// SerialNumber is the USB serial number, if any
	SerialNumber string
	// Bridge names the USB-UART bridge chip when it is a known one
	Bridge string
}

// knownBridges are USB-UART bridges commonly wired to STM32 USARTs
var knownBridges = map[string]string{
	"0403:6001": "FT232R",
	"0403:6015": "FT231X",
	"067B:2303": "PL2303",
	"10C4:EA60": "CP210x",
	"1A86:55D4": "CH9102",
	"1A86:7523": "CH340",
}

// DetectPorts lists the host's serial ports with USB metadata, known
// bridges first. Paths in ignore are left out.
func DetectPorts(ignore []string) ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return describePorts(details, ignore), nil
}

func describePorts(details []*enumerator.PortDetails, ignore []string) []PortInfo {
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || isPathIgnored(d.Name, ignore) {
			continue
		}
		info := PortInfo{Path: d.Name}
		if d.IsUSB {
			info.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
			info.Product = d.Product
			info.SerialNumber = d.SerialNumber
			info.Bridge = knownBridges[info.VIDPID]
		}
		ports = append(ports, info)
	}

	slices.SortStableFunc(ports, func(a, b PortInfo) int {
		if (a.Bridge != "") != (b.Bridge != "") {
			if a.Bridge != "" {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Path, b.Path)
	})
	return ports
}

// String formats the port for a listing
func (p PortInfo) String() string {
	parts := []string{p.Path}
	if p.VIDPID != "" {
		parts = append(parts, p.VIDPID)
	}
	if p.Bridge != "" {
		parts = append(parts, p.Bridge)
	}
	if p.Product != "" {
		parts = append(parts, fmt.Sprintf("%q", p.Product))
	}
	if p.SerialNumber != "" {
		parts = append(parts, "serial="+p.SerialNumber)
	}
	return strings.Join(parts, "  ")
}

func isPathIgnored(path string, ignore []string) bool {
	if path == "" {
		return false
	}
	clean := filepath.Clean(path)
	for _, p := range ignore {
		if p == "" {
			continue
		}
		if p == path || filepath.Clean(p) == clean {
			return true
		}
	}
	return false
}
