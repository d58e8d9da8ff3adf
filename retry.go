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
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig controls RetryWithConfig. A session never retries a command
// on its own: a NACK or timeout ends it, and only a fresh session (reset,
// sync, identify) is attempted again.
type RetryConfig struct {
	// OnRetry, if set, is called with the number of the attempt about to
	// start and the error that ended the previous one
	OnRetry func(attempt int, err error)
	// MaxAttempts bounds the number of sessions; 0 runs exactly one with no
	// cancellation check
	MaxAttempts int
	// InitialBackoff is the pause after the first failure
	InitialBackoff time.Duration
	// MaxBackoff caps the pause between sessions
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after every failure
	BackoffMultiplier float64
	// Jitter stretches each pause by up to this fraction
	Jitter float64
	// RetryTimeout bounds all attempts together; 0 means no bound
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns a single attempt. Raising MaxAttempts keeps
// the pauses long enough for a target to settle after reset.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// RetryableFunc is one complete attempt, usually a Run call
type RetryableFunc func() error

// RetryWithConfig calls attempt until it succeeds, fails with an error
// IsRetryable rejects, or the attempts or RetryTimeout run out. The error
// of the last attempt is returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, attempt RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return attempt()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	pause := config.InitialBackoff
	for n := 1; n <= config.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", err)
		}

		err := attempt()
		if err == nil || !IsRetryable(err) {
			return err
		}
		lastErr = err
		if n == config.MaxAttempts {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(n+1, err)
		}
		if !waitBackoff(ctx, withJitter(pause, config.Jitter)) {
			return lastErr
		}
		pause = growBackoff(pause, config)
	}
	return lastErr
}

// waitBackoff sleeps for d and reports false if ctx ended first
func waitBackoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func growBackoff(pause time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(pause) * config.BackoffMultiplier)
	return min(next, config.MaxBackoff)
}

// withJitter adds a random [0, factor) share of d. If the system random
// source fails, d is returned unchanged.
func withJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return d
	}
	frac := float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
	return d + time.Duration(frac*factor*float64(d))
}
