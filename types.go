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

package apidash

import (
	"log/slog"
	"time"
)

// Event is one served-request record as reported by a host application or
// middleware adapter. Fields are sanitized and bounded by sanitizeEvent
// before they ever reach the buffer, see sanitize.go.
type Event struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	StatusCode     int            `json:"status_code"`
	ResponseTimeMs float64        `json:"response_time_ms"`
	RequestSize    int64          `json:"request_size,omitempty"`
	ResponseSize   int64          `json:"response_size,omitempty"`
	ConsumerID     string         `json:"consumer_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      string         `json:"timestamp,omitempty"`
}

// Default tunables applied by New when an Options field is left zero.
const (
	DefaultFlushInterval   = 10 * time.Second
	DefaultBatchSize       = 100
	DefaultMaxBufferSize   = 10_000
	DefaultMaxStorageBytes = 5 * 1024 * 1024
	DefaultMaxEventBytes   = 64 * 1024

	maxPathLength       = 2048
	maxMethodLength     = 16
	maxConsumerIDLength = 256

	maxConsecutiveFailures = 5
	baseBackoff            = 1 * time.Second
	sendTimeout            = 5 * time.Second
)

// Options configures a Client. APIKey and Endpoint are required; everything
// else falls back to the defaults above when left zero.
type Options struct {
	APIKey   string
	Endpoint string

	FlushInterval   time.Duration
	BatchSize       int
	MaxBufferSize   int
	MaxStorageBytes int64
	MaxEventBytes   int
	StoragePath     string

	Debug  bool
	Logger *slog.Logger

	// OnError is invoked, from whichever goroutine performed the send, with
	// the classified error after every failed flush. Its own panics/errors
	// are recovered and discarded, see client.go's callOnError.
	OnError func(error)

	// Metrics enables the optional Prometheus instrumentation in
	// internal/metrics. Off by default.
	Metrics bool

	// DedupRedisAddr, when set, enables the optional cross-restart delivery
	// marker backed by Redis. Off by default.
	DedupRedisAddr string
	// DedupTTL bounds how long a delivery marker is retained in Redis.
	// Defaults to 24h when DedupRedisAddr is set and DedupTTL is zero.
	DedupTTL time.Duration
}

type sendOutcome int

const (
	outcomeOK sendOutcome = iota
	outcomeRetryable
	outcomeNonRetryable
)

// batch is a drained, in-flight slice of events plus the correlation id
// used for the wire header and the optional delivery-dedup marker.
type batch struct {
	id     string
	events []Event
}
