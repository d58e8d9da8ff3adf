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

// Package metrics exports protocol events as Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZaparooProject/go-stm32boot"
)

// Config names the metric namespace and subsystem
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the stm32boot_protocol_* naming
func DefaultConfig() *Config {
	return &Config{
		Namespace: "stm32boot",
		Subsystem: "protocol",
	}
}

// Metrics implements stm32boot.Observer with Prometheus collectors.
type Metrics struct {
	commands        *prometheus.CounterVec
	acks            *prometheus.CounterVec
	pages           *prometheus.CounterVec
	bytes           *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	lastSuccess     prometheus.Gauge
}

var _ stm32boot.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer, config *Config) (*Metrics, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ns, sub := config.Namespace, config.Subsystem

	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "commands_sent_total", Help: "Commands sent"}, []string{"command"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "acks_total", Help: "Acknowledgement points by result"}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "pages_total", Help: "Memory pages transferred"}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "bytes_total", Help: "Memory bytes transferred"}, []string{"direction"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "sessions_total", Help: "Finished sessions by outcome"}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "session_duration_seconds", Help: "Session duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10)}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "last_session_success", Help: "1 if the last session succeeded"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.commands, m.acks, m.pages, m.bytes, m.sessions, m.sessionDuration, m.lastSuccess,
		} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	return m, nil
}

// CommandSent counts a command by name
func (m *Metrics) CommandSent(cmd stm32boot.Command) {
	m.commands.WithLabelValues(cmd.String()).Inc()
}

// AckReceived counts an ack point by result
func (m *Metrics) AckReceived(_ string, err error) {
	m.acks.WithLabelValues(ackResult(err)).Inc()
}

// PageTransferred counts a page and its bytes
func (m *Metrics) PageTransferred(dir stm32boot.Direction, _ uint32, n int) {
	m.pages.WithLabelValues(string(dir)).Inc()
	m.bytes.WithLabelValues(string(dir)).Add(float64(n))
}

// SessionFinished records the session outcome and duration
func (m *Metrics) SessionFinished(_ string, err error, elapsed time.Duration) {
	outcome := "success"
	m.lastSuccess.Set(1)
	if err != nil {
		outcome = "failure"
		m.lastSuccess.Set(0)
	}
	m.sessions.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(elapsed.Seconds())
}

func ackResult(err error) string {
	if err == nil {
		return "ack"
	}
	var pe *stm32boot.ProtocolError
	if !errors.As(err, &pe) {
		return "transport_error"
	}
	switch pe.Kind {
	case stm32boot.KindNacked:
		return "nack"
	case stm32boot.KindAckTimeout:
		return "timeout"
	case stm32boot.KindUnexpectedByte:
		return "unexpected"
	case stm32boot.KindShortRead:
		return "short_read"
	case stm32boot.KindInvalidResponse:
		return "invalid"
	default:
		return "error"
	}
}

// WriteTextfile writes everything g gathers in the node_exporter textfile
// format, replacing path atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
