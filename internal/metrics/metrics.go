// Copyright 2026 The Apidash Authors. All Rights Reserved.
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

// Package metrics provides opt-in, zero-overhead-when-disabled Prometheus
// instrumentation for the client: a "enable once, no-op until then" gated
// counter/gauge set.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records client events to Prometheus. The zero value is a valid,
// fully inert Recorder; every method is a no-op until Enable is called.
type Recorder struct {
	mu      sync.Mutex
	enabled bool

	eventsTracked   prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	bufferLength    prometheus.Gauge
	sends           *prometheus.CounterVec
	consecutiveFail prometheus.Gauge
	spilledBatches  prometheus.Counter
	storageBytes    prometheus.Gauge
}

// New returns an inert Recorder. Call Enable to activate it.
func New() *Recorder {
	return &Recorder{}
}

// Enable registers the collectors against reg and switches the recorder
// on. Safe to call at most once; subsequent calls are no-ops. Registering
// against a per-client prometheus.Registry (rather than the global
// default) lets multiple Client instances in one process each expose
// their own metrics without collector-name collisions.
func (r *Recorder) Enable(reg prometheus.Registerer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return
	}

	r.eventsTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apidash_events_tracked_total",
		Help: "Total events accepted by Track.",
	})
	r.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apidash_events_dropped_total",
		Help: "Total events dropped before buffering, by reason.",
	}, []string{"reason"})
	r.bufferLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "apidash_buffer_length",
		Help: "Current number of events held in the in-memory buffer.",
	})
	r.sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apidash_sends_total",
		Help: "Total batch send attempts, by classified result.",
	}, []string{"result"})
	r.consecutiveFail = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "apidash_consecutive_failures",
		Help: "Current consecutive retryable-failure count.",
	})
	r.spilledBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apidash_spilled_batches_total",
		Help: "Total batches written to the disk spill store.",
	})
	r.storageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "apidash_storage_bytes",
		Help: "Approximate size in bytes of the disk spill file.",
	})

	reg.MustRegister(
		r.eventsTracked, r.eventsDropped, r.bufferLength,
		r.sends, r.consecutiveFail, r.spilledBatches, r.storageBytes,
	)
	r.enabled = true
}

func (r *Recorder) TrackedEvent() {
	if r == nil || !r.enabled {
		return
	}
	r.eventsTracked.Inc()
}

func (r *Recorder) DroppedEvent(reason string) {
	if r == nil || !r.enabled {
		return
	}
	r.eventsDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetBufferLength(n int) {
	if r == nil || !r.enabled {
		return
	}
	r.bufferLength.Set(float64(n))
}

func (r *Recorder) RecordSend(result string) {
	if r == nil || !r.enabled {
		return
	}
	r.sends.WithLabelValues(result).Inc()
}

func (r *Recorder) SetConsecutiveFailures(n int) {
	if r == nil || !r.enabled {
		return
	}
	r.consecutiveFail.Set(float64(n))
}

func (r *Recorder) SpilledBatch() {
	if r == nil || !r.enabled {
		return
	}
	r.spilledBatches.Inc()
}

func (r *Recorder) SetStorageBytes(n int64) {
	if r == nil || !r.enabled {
		return
	}
	r.storageBytes.Set(float64(n))
}
