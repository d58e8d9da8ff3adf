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

// Package config reads the flasher's HCL configuration file.
//
//	serial {
//	  port         = "/dev/ttyS3"
//	  baud         = 115200
//	  parity       = "even"
//	  read_timeout = "5s"
//	}
//	lines {
//	  driver = "sysfs"
//	  boot   = "PA7"
//	  reset  = "PA8"
//	}
//	protocol {
//	  framing    = "checksum"
//	  reset_low  = "100ms"
//	  reset_hold = "500ms"
//	}
//	flash {
//	  address = "0x08000000"
//	  verify  = true
//	}
//	s3 {
//	  endpoint   = "minio.local:9000"
//	  access_key = "..."
//	  secret_key = "..."
//	  secure     = true
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-stm32boot"
	"github.com/ZaparooProject/go-stm32boot/firmware"
	"github.com/ZaparooProject/go-stm32boot/line"
	"github.com/ZaparooProject/go-stm32boot/transport/uart"
)

// FileSchema is the top level of the configuration file
type FileSchema struct {
	Serial   *SerialSchema   `hcl:"serial,block"`
	Lines    *LinesSchema    `hcl:"lines,block"`
	Protocol *ProtocolSchema `hcl:"protocol,block"`
	Flash    *FlashSchema    `hcl:"flash,block"`
	S3       *S3Schema       `hcl:"s3,block"`
	Metrics  *MetricsSchema  `hcl:"metrics,block"`
}

type SerialSchema struct {
	Port        string `hcl:"port,optional"`
	Baud        int    `hcl:"baud,optional"`
	Parity      string `hcl:"parity,optional"`
	StopBits    int    `hcl:"stop_bits,optional"`
	ReadTimeout string `hcl:"read_timeout,optional"`
	Exclusive   *bool  `hcl:"exclusive,optional"`
}

type LinesSchema struct {
	Driver         string `hcl:"driver,optional"`
	Boot           string `hcl:"boot,optional"`
	Reset          string `hcl:"reset,optional"`
	BootActiveLow  bool   `hcl:"boot_active_low,optional"`
	ResetActiveLow bool   `hcl:"reset_active_low,optional"`
}

type ProtocolSchema struct {
	Framing      string `hcl:"framing,optional"`
	ResetLow     string `hcl:"reset_low,optional"`
	ResetHold    string `hcl:"reset_hold,optional"`
	EraseTimeout string `hcl:"erase_timeout,optional"`
	Attempts     int    `hcl:"attempts,optional"`
}

type FlashSchema struct {
	Address string `hcl:"address,optional"`
	Erase   bool   `hcl:"erase,optional"`
	Verify  bool   `hcl:"verify,optional"`
}

type S3Schema struct {
	Endpoint  string `hcl:"endpoint,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	Secure    bool   `hcl:"secure,optional"`
}

type MetricsSchema struct {
	Textfile string `hcl:"textfile,optional"`
}

// Settings is the resolved configuration the CLI runs with
type Settings struct {
	S3             firmware.S3Config
	LineDriver     string
	BootPin        string
	ResetPin       string
	MetricsFile    string
	UART           uart.Config
	ResetLow       time.Duration
	ResetHold      time.Duration
	EraseTimeout   time.Duration
	Attempts       int
	Framing        stm32boot.Framing
	Address        uint32
	BootActiveLow  bool
	ResetActiveLow bool
	Erase          bool
	Verify         bool
}

// Defaults returns the settings used when neither file nor flags say
// otherwise. Framing stays unset.
func Defaults() Settings {
	return Settings{
		UART:         uart.DefaultConfig(""),
		LineDriver:   line.DriverSysfs,
		ResetLow:     stm32boot.DefaultResetLowTime,
		ResetHold:    stm32boot.DefaultResetHoldTime,
		EraseTimeout: stm32boot.DefaultEraseTimeout,
		Attempts:     1,
		Address:      stm32boot.DefaultFlashAddress,
	}
}

// Load reads path and applies it on top of Defaults
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(data, path)
}

// Decode parses HCL source and applies it on top of Defaults
func Decode(data []byte, filename string) (Settings, error) {
	file, diag := hclsyntax.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return Settings{}, diag.Errs()[0]
	}

	schema := new(FileSchema)
	diag = gohcl.DecodeBody(file.Body, nil, schema)
	if diag.HasErrors() {
		return Settings{}, diag.Errs()[0]
	}

	settings := Defaults()
	if err := schema.Apply(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Apply copies every value present in the file into settings
func (s *FileSchema) Apply(settings *Settings) error {
	if sc := s.Serial; sc != nil {
		if sc.Port != "" {
			settings.UART.Port = sc.Port
		}
		if sc.Baud != 0 {
			settings.UART.BaudRate = sc.Baud
		}
		if sc.Parity != "" {
			settings.UART.Parity = sc.Parity
		}
		if sc.StopBits != 0 {
			settings.UART.StopBits = sc.StopBits
		}
		if sc.Exclusive != nil {
			settings.UART.Exclusive = *sc.Exclusive
		}
		if err := parseDuration(sc.ReadTimeout, "serial.read_timeout", &settings.UART.ReadTimeout); err != nil {
			return err
		}
	}

	if lc := s.Lines; lc != nil {
		if lc.Driver != "" {
			settings.LineDriver = lc.Driver
		}
		if lc.Boot != "" {
			settings.BootPin = lc.Boot
		}
		if lc.Reset != "" {
			settings.ResetPin = lc.Reset
		}
		settings.BootActiveLow = lc.BootActiveLow
		settings.ResetActiveLow = lc.ResetActiveLow
	}

	if pc := s.Protocol; pc != nil {
		if pc.Framing != "" {
			f, err := stm32boot.ParseFraming(pc.Framing)
			if err != nil {
				return fmt.Errorf("protocol.framing: %w", err)
			}
			settings.Framing = f
		}
		if pc.Attempts != 0 {
			settings.Attempts = pc.Attempts
		}
		if err := parseDuration(pc.ResetLow, "protocol.reset_low", &settings.ResetLow); err != nil {
			return err
		}
		if err := parseDuration(pc.ResetHold, "protocol.reset_hold", &settings.ResetHold); err != nil {
			return err
		}
		if err := parseDuration(pc.EraseTimeout, "protocol.erase_timeout", &settings.EraseTimeout); err != nil {
			return err
		}
	}

	if fc := s.Flash; fc != nil {
		if fc.Address != "" {
			addr, err := ParseAddress(fc.Address)
			if err != nil {
				return fmt.Errorf("flash.address: %w", err)
			}
			settings.Address = addr
		}
		settings.Erase = fc.Erase
		settings.Verify = fc.Verify
	}

	if s3 := s.S3; s3 != nil {
		settings.S3 = firmware.S3Config{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Secure:    s3.Secure,
		}
	}

	if mc := s.Metrics; mc != nil && mc.Textfile != "" {
		settings.MetricsFile = mc.Textfile
	}
	return nil
}

func parseDuration(value, field string, out *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: %w: negative duration", field, stm32boot.ErrInvalidParameter)
	}
	*out = d
	return nil
}

// ParseAddress parses a 32-bit address in decimal, 0x hex or 0 octal
func ParseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q", stm32boot.ErrInvalidParameter, s)
	}
	return uint32(v), nil
}

// SessionConfig builds the engine configuration from the settings
func (s Settings) SessionConfig(logger types.Logger, observer stm32boot.Observer) stm32boot.Config {
	cfg := stm32boot.DefaultConfig()
	cfg.Logger = logger
	cfg.Observer = observer
	cfg.Framing = s.Framing
	cfg.ResetLowTime = s.ResetLow
	cfg.ResetHoldTime = s.ResetHold
	cfg.EraseTimeout = s.EraseTimeout
	if s.UART.ReadTimeout > 0 {
		cfg.ReadTimeout = s.UART.ReadTimeout
	}
	return cfg
}

// RetryConfig returns the session-level retry policy for Attempts
func (s Settings) RetryConfig() *stm32boot.RetryConfig {
	rc := stm32boot.DefaultRetryConfig()
	if s.Attempts > 1 {
		rc.MaxAttempts = s.Attempts
	}
	return rc
}
