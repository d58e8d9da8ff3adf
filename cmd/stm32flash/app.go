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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZaparooProject/go-stm32boot"
	"github.com/ZaparooProject/go-stm32boot/config"
	"github.com/ZaparooProject/go-stm32boot/firmware"
	"github.com/ZaparooProject/go-stm32boot/metrics"
	"github.com/ZaparooProject/go-stm32boot/transport/uart"
)

// flagValues holds raw command-line values. They override the config file
// only when the flag was given.
type flagValues struct {
	configPath     string
	port           string
	framing        string
	bootPin        string
	resetPin       string
	pinDriver      string
	address        string
	logFile        string
	metricsFile    string
	s3Endpoint     string
	s3AccessKey    string
	s3SecretKey    string
	baud           int
	attempts       int
	dumpLength     int
	bootActiveLow  bool
	resetActiveLow bool
	erase          bool
	verify         bool
	debug          bool
	s3Secure       bool
}

type app struct {
	stdout   io.Writer
	stderr   io.Writer
	open     targetOpener
	ports    func(ignore []string) ([]uart.PortInfo, error)
	log      types.RootLogger
	logFile  *os.File
	args     []string
	settings config.Settings
	flags    flagValues
}

func newApp(stdout, stderr io.Writer, open targetOpener) *app {
	return &app{stdout: stdout, stderr: stderr, open: open, ports: uart.DetectPorts}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "stm32flash [flags] <image>",
		Short: "Program STM32 microcontrollers through the USART bootloader",
		Long: "stm32flash writes a firmware image to an STM32 target over its factory\n" +
			"USART bootloader. The image is a local path or an s3://bucket/key URL.",
		Args:              cobra.ExactArgs(1),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
		RunE:              a.runFlash,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "HCL configuration file")
	pf.StringVarP(&a.flags.port, "port", "p", "", "serial port connected to the target USART")
	pf.IntVarP(&a.flags.baud, "baud", "b", 0, "serial baud rate (default 115200)")
	pf.StringVar(&a.flags.framing, "framing", "", "command self-check byte: complement or checksum")
	pf.StringVar(&a.flags.bootPin, "boot-pin", "", "GPIO driving the target BOOT0 pin")
	pf.StringVar(&a.flags.resetPin, "reset-pin", "", "GPIO driving the target NRST pin")
	pf.StringVar(&a.flags.pinDriver, "pin-driver", "", "GPIO backend: sysfs or gpio (default sysfs)")
	pf.BoolVar(&a.flags.bootActiveLow, "boot-active-low", false, "boot line is asserted by driving it low")
	pf.BoolVar(&a.flags.resetActiveLow, "reset-active-low", false, "reset line is released by driving it low")
	pf.StringVarP(&a.flags.address, "address", "a", "", "target memory address (default 0x08000000)")
	pf.IntVar(&a.flags.attempts, "attempts", 0, "number of whole-session attempts")
	pf.BoolVarP(&a.flags.debug, "debug", "d", false, "trace protocol traffic and print the wire trace on failure")
	pf.StringVar(&a.flags.logFile, "log-file", "", "append a session log to this file")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	pf.StringVar(&a.flags.s3Endpoint, "s3-endpoint", "", "S3 endpoint for s3:// images")
	pf.StringVar(&a.flags.s3AccessKey, "s3-access-key", "", "S3 access key")
	pf.StringVar(&a.flags.s3SecretKey, "s3-secret-key", "", "S3 secret key")
	pf.BoolVar(&a.flags.s3Secure, "s3-secure", false, "use TLS for the S3 endpoint")

	root.Flags().BoolVarP(&a.flags.erase, "erase", "e", false, "erase the whole flash before writing")
	root.Flags().BoolVarP(&a.flags.verify, "verify", "v", false, "read the image back after writing")

	root.AddCommand(a.infoCommand(), a.dumpCommand(), a.eraseCommand(), a.portsCommand())
	return root
}

// prepare resolves settings and opens the log before any command runs.
func (a *app) prepare(cmd *cobra.Command, args []string) error {
	settings := config.Defaults()
	if a.flags.configPath != "" {
		loaded, err := config.Load(a.flags.configPath)
		if err != nil {
			return err
		}
		settings = loaded
	}
	if err := a.applyFlags(cmd.Flags(), &settings); err != nil {
		return err
	}
	a.settings = settings
	a.args = append([]string{cmd.CommandPath()}, args...)
	return a.setupLogging()
}

func (a *app) applyFlags(fs *pflag.FlagSet, s *config.Settings) error {
	f := a.flags
	if fs.Changed("port") {
		s.UART.Port = f.port
	}
	if fs.Changed("baud") {
		s.UART.BaudRate = f.baud
	}
	if fs.Changed("framing") {
		framing, err := stm32boot.ParseFraming(f.framing)
		if err != nil {
			return fmt.Errorf("--framing: %w", err)
		}
		s.Framing = framing
	}
	if fs.Changed("boot-pin") {
		s.BootPin = f.bootPin
	}
	if fs.Changed("reset-pin") {
		s.ResetPin = f.resetPin
	}
	if fs.Changed("pin-driver") {
		s.LineDriver = f.pinDriver
	}
	if fs.Changed("boot-active-low") {
		s.BootActiveLow = f.bootActiveLow
	}
	if fs.Changed("reset-active-low") {
		s.ResetActiveLow = f.resetActiveLow
	}
	if fs.Changed("address") {
		addr, err := config.ParseAddress(f.address)
		if err != nil {
			return fmt.Errorf("--address: %w", err)
		}
		s.Address = addr
	}
	if fs.Changed("attempts") {
		if f.attempts < 1 {
			return fmt.Errorf("--attempts: %w: must be at least 1", stm32boot.ErrInvalidParameter)
		}
		s.Attempts = f.attempts
	}
	if fs.Changed("erase") {
		s.Erase = f.erase
	}
	if fs.Changed("verify") {
		s.Verify = f.verify
	}
	if fs.Changed("metrics-file") {
		s.MetricsFile = f.metricsFile
	}
	if fs.Changed("s3-endpoint") {
		s.S3.Endpoint = f.s3Endpoint
	}
	if fs.Changed("s3-access-key") {
		s.S3.AccessKey = f.s3AccessKey
	}
	if fs.Changed("s3-secret-key") {
		s.S3.SecretKey = f.s3SecretKey
	}
	if fs.Changed("s3-secure") {
		s.S3.Secure = f.s3Secure
	}
	return nil
}

func (a *app) setupLogging() error {
	var w io.Writer
	if a.flags.logFile != "" {
		f, err := openSessionLog(a.flags.logFile, a.args)
		if err != nil {
			return err
		}
		a.logFile = f
		w = f
		if a.flags.debug {
			w = io.MultiWriter(a.stderr, f)
		}
	} else if a.flags.debug {
		w = a.stderr
	}
	if w == nil {
		return nil
	}
	a.log = logging.New(logging.Zerolog, "stm32flash", w)
	a.log.SetLevel(types.InfoLevel)
	if a.flags.debug {
		a.log.SetLevel(types.TraceLevel)
	}
	return nil
}

func (a *app) logger() types.Logger {
	if a.log == nil {
		return nil
	}
	return a.log
}

func (a *app) close() {
	if a.logFile != nil {
		if err := closeSessionLog(a.logFile); err != nil {
			_, _ = fmt.Fprintf(a.stderr, "Warning: %v\n", err)
		}
		a.logFile = nil
	}
}

func (a *app) printError(err error) {
	_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
	if !a.flags.debug {
		return
	}
	if te := stm32boot.GetTrace(err); te != nil {
		_, _ = fmt.Fprint(a.stderr, te.FormatTrace())
	}
}

// withSession runs fn inside a bootloader session, retrying whole sessions
// per the configured attempts. Metrics are written after the last attempt.
func (a *app) withSession(ctx context.Context, fn func(*stm32boot.Session) error) error {
	if a.settings.Framing == stm32boot.FramingUnset {
		return fmt.Errorf("%w (use --framing complement|checksum or protocol.framing)", stm32boot.ErrFramingUnset)
	}

	var (
		observer stm32boot.Observer
		registry *prometheus.Registry
	)
	if a.settings.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		m, err := metrics.New(registry, nil)
		if err != nil {
			return err
		}
		observer = m
	}

	cfg := a.settings.SessionConfig(a.logger(), observer)
	rc := a.settings.RetryConfig()
	rc.OnRetry = func(attempt int, err error) {
		_, _ = fmt.Fprintf(a.stderr, "Attempt %d failed: %v; retrying\n", attempt-1, err)
	}

	err := stm32boot.RetryWithConfig(ctx, rc, func() error {
		t, err := a.open(a.settings)
		if err != nil {
			return err
		}
		runErr := stm32boot.Run(ctx, t.transport, t.boot, t.reset, cfg, fn)
		return errors.Join(runErr, t.Close())
	})

	if registry != nil {
		if werr := metrics.WriteTextfile(a.settings.MetricsFile, registry); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return err
}

func (a *app) printInfo(info *stm32boot.Info) {
	_, _ = fmt.Fprintf(a.stdout, "Bootloader version: %s\n", info.VersionString())
	_, _ = fmt.Fprintf(a.stdout, "Commands: %s\n", info.Commands)
	_, _ = fmt.Fprintf(a.stdout, "Extended erase: %t\n", info.ExtendedErase())
	_, _ = fmt.Fprintf(a.stdout, "Chip ID: 0x%04X\n", info.ChipID)
}

func (a *app) runFlash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	image, err := firmware.Load(ctx, args[0], a.settings.S3)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Image: %s (%d bytes, CRC-32 0x%08X)\n", args[0], len(image), firmware.CRC32(image))

	return a.withSession(ctx, func(s *stm32boot.Session) error {
		result, err := s.Flash(ctx, image, stm32boot.FlashOptions{
			Address: a.settings.Address,
			Erase:   a.settings.Erase,
			Verify:  a.settings.Verify,
		})
		if err != nil {
			return err
		}
		a.printInfo(&result.Info)
		if result.Erased {
			_, _ = fmt.Fprintln(a.stdout, "Erased flash")
		}
		_, _ = fmt.Fprintf(a.stdout, "Wrote %d bytes in %d pages at 0x%08X in %s\n",
			result.Bytes, result.Pages, a.settings.Address, result.Duration.Round(time.Millisecond))
		if result.Verified {
			_, _ = fmt.Fprintln(a.stdout, "Verified")
		}
		return nil
	})
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the bootloader version, command set and chip ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *stm32boot.Session) error {
				info, err := s.Identify(ctx)
				if err != nil {
					return err
				}
				a.printInfo(info)
				if !info.Commands.Has(stm32boot.CmdGetVersion) {
					return nil
				}
				_, opt1, opt2, err := s.GetVersion(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "Option bytes: 0x%02X 0x%02X\n", opt1, opt2)
				return nil
			})
		},
	}
}

func (a *app) dumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <output>",
		Short: "Read target memory into a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.dumpLength <= 0 {
				return fmt.Errorf("--length: %w: must be positive", stm32boot.ErrInvalidParameter)
			}
			ctx := cmd.Context()
			var data []byte
			err := a.withSession(ctx, func(s *stm32boot.Session) error {
				var err error
				data, err = s.ReadMemory(ctx, a.flags.dumpLength, a.settings.Address)
				return err
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil { //nolint:gosec // firmware dump, not secret
				return fmt.Errorf("failed to write dump: %w", err)
			}
			_, _ = fmt.Fprintf(a.stdout, "Read %d bytes from 0x%08X to %s (CRC-32 0x%08X)\n",
				len(data), a.settings.Address, args[0], firmware.CRC32(data))
			return nil
		},
	}
	cmd.Flags().IntVarP(&a.flags.dumpLength, "length", "l", 0, "number of bytes to read")
	return cmd
}

func (a *app) eraseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase the whole flash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			err := a.withSession(ctx, func(s *stm32boot.Session) error {
				return s.EraseAll(ctx)
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, "Erased flash")
			return nil
		},
	}
}

func (a *app) portsCommand() *cobra.Command {
	var ignore []string
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, known USB-UART bridges first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ports, err := a.ports(ignore)
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No serial ports found")
				return nil
			}
			for _, p := range ports {
				_, _ = fmt.Fprintln(a.stdout, p)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "device paths to leave out")
	return cmd
}
