// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus collectors for the block server.
//
// All recording methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "remoteblock"

// Reasons reported with ChannelsClosed
const (
	CloseReasonTransport = "transport"
	CloseReasonProtocol  = "protocol"
	CloseReasonTimeout   = "timeout"
	CloseReasonShutdown  = "shutdown"
	CloseReasonRefused   = "refused"
)

type Metrics struct {
	registry *prometheus.Registry

	ChannelsActive   prometheus.Gauge
	BlocksActive     prometheus.Gauge
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	ProtocolErrors   prometheus.Counter
	Evaluations      prometheus.Counter
	EvaluationErrors prometheus.Counter
	BlocksEvicted    prometheus.Counter
	ChannelsClosed   *prometheus.CounterVec
	TickDuration     prometheus.Histogram
}

// New creates the collectors and registers them, plus the Go runtime and process
// collectors, with a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChannelsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channels_active",
				Help:      "Number of connected remote units",
			},
		),
		BlocksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "blocks_active",
				Help:      "Number of live blocks across all channels",
			},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received",
			},
			[]string{"type"},
		),
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total number of messages sent",
			},
			[]string{"type"},
		),
		ProtocolErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_errors_total",
				Help:      "Total number of protocol errors that closed a channel",
			},
		),
		Evaluations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of block evaluations",
			},
		),
		EvaluationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed block evaluations",
			},
		),
		BlocksEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_evicted_total",
				Help:      "Total number of blocks evicted after their watchdog expired",
			},
		),
		ChannelsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channels_closed_total",
				Help:      "Total number of closed channels",
			},
			[]string{"reason"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of one scheduling loop tick",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
	}
	m.registry.MustRegister(
		m.ChannelsActive,
		m.BlocksActive,
		m.MessagesReceived,
		m.MessagesSent,
		m.ProtocolErrors,
		m.Evaluations,
		m.EvaluationErrors,
		m.BlocksEvicted,
		m.ChannelsClosed,
		m.TickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding all collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.ChannelsActive.Inc()
}

func (m *Metrics) ChannelClosed(reason string) {
	if m == nil {
		return
	}
	m.ChannelsActive.Dec()
	m.ChannelsClosed.WithLabelValues(reason).Inc()
}

// ChannelRefused counts a connection turned away before a channel was created
func (m *Metrics) ChannelRefused() {
	if m == nil {
		return
	}
	m.ChannelsClosed.WithLabelValues(CloseReasonRefused).Inc()
}

func (m *Metrics) BlockAdded() {
	if m == nil {
		return
	}
	m.BlocksActive.Inc()
}

func (m *Metrics) BlockRemoved(evicted bool) {
	if m == nil {
		return
	}
	m.BlocksActive.Dec()
	if evicted {
		m.BlocksEvicted.Inc()
	}
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageSent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// Evaluation records one block evaluation and whether it failed
func (m *Metrics) Evaluation(failed bool) {
	if m == nil {
		return
	}
	m.Evaluations.Inc()
	if failed {
		m.EvaluationErrors.Inc()
	}
}

func (m *Metrics) ObserveTick(duration time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(duration.Seconds())
}
