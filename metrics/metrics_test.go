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

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-stm32boot"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg, DefaultConfig())
	require.NoError(t, err)
	return m, reg
}

func TestNew_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg, nil)
	require.NoError(t, err)
	_, err = New(reg, nil)
	require.Error(t, err)
}

func TestMetrics_Commands(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	m.CommandSent(stm32boot.CmdGet)
	m.CommandSent(stm32boot.CmdWriteMemory)
	m.CommandSent(stm32boot.CmdWriteMemory)

	assert.InDelta(t, 1, testutil.ToFloat64(m.commands.WithLabelValues("get")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.commands.WithLabelValues("write_memory")), 0)
}

func TestAckResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ack"},
		{err: &stm32boot.ProtocolError{Kind: stm32boot.KindNacked}, want: "nack"},
		{err: &stm32boot.ProtocolError{Kind: stm32boot.KindAckTimeout}, want: "timeout"},
		{err: &stm32boot.ProtocolError{Kind: stm32boot.KindUnexpectedByte}, want: "unexpected"},
		{err: &stm32boot.ProtocolError{Kind: stm32boot.KindShortRead}, want: "short_read"},
		{err: &stm32boot.ProtocolError{Kind: stm32boot.KindInvalidResponse}, want: "invalid"},
		{err: errors.New("port closed"), want: "transport_error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ackResult(tt.err))
		})
	}
}

func TestMetrics_Pages(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	m.PageTransferred(stm32boot.DirectionWrite, 0x08000000, 256)
	m.PageTransferred(stm32boot.DirectionWrite, 0x08000100, 44)
	m.PageTransferred(stm32boot.DirectionRead, 0x08000000, 16)

	assert.InDelta(t, 2, testutil.ToFloat64(m.pages.WithLabelValues("write")), 0)
	assert.InDelta(t, 300, testutil.ToFloat64(m.bytes.WithLabelValues("write")), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(m.bytes.WithLabelValues("read")), 0)
}

func TestMetrics_Sessions(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	m.SessionFinished("a", nil, time.Second)
	assert.InDelta(t, 1, testutil.ToFloat64(m.lastSuccess), 0)

	m.SessionFinished("b", stm32boot.ErrAckTimeout, 2*time.Second)
	assert.InDelta(t, 0, testutil.ToFloat64(m.lastSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessions.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessions.WithLabelValues("failure")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionDuration))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, reg := newTestMetrics(t)
	m.CommandSent(stm32boot.CmdGet)
	m.AckReceived("sync", nil)

	path := filepath.Join(t.TempDir(), "stm32boot.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stm32boot_protocol_commands_sent_total{command="get"} 1`)
	assert.Contains(t, string(data), `stm32boot_protocol_acks_total{result="ack"} 1`)
}
