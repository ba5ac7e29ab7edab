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

// Package apidash is an embeddable client for batching, buffering, and
// reliably delivering API request-event records to an ingestion endpoint.
package apidash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apidash/go-client/internal/metrics"
	"github.com/apidash/go-client/internal/mirror"
	"github.com/apidash/go-client/internal/spill"
	"github.com/apidash/go-client/internal/ssrf"
)

// Client is the ingestion client: in-memory buffer, background flusher,
// send/retry/backoff state machine, disk spill-over, and shutdown
// lifecycle, all in one instance. The zero value is not usable; build one
// with New.
type Client struct {
	opts Options

	httpClient *http.Client
	spillStore *spill.Store
	driver     *driver
	metrics    *metrics.Recorder
	mirror     *mirror.Mirror
	rng        *rand.Rand

	// mu guards everything below: the buffer plus the in-flight/failure/
	// backoff triple, all updated together.
	mu                  sync.Mutex
	buf                 *eventBuffer
	inFlight            bool
	consecutiveFailures int
	backoffUntil        time.Time

	shutdownOnce sync.Once
	signalCh     chan os.Signal
}

func controlChars(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return true
		}
	}
	return false
}

// New validates opts, applies defaults, replays any on-disk spill file into
// the buffer, and starts the background driver. It is the only apidash
// function that returns an error; every other entry point absorbs its own
// failures internally.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, &ConfigError{Message: "api_key is required"}
	}
	if controlChars(opts.APIKey) {
		return nil, &ConfigError{Message: "api_key must not contain control characters"}
	}

	endpoint, err := ssrf.ValidateEndpoint(opts.Endpoint)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	opts.Endpoint = endpoint

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = DefaultMaxBufferSize
	}
	if opts.MaxStorageBytes <= 0 {
		opts.MaxStorageBytes = DefaultMaxStorageBytes
	}
	if opts.MaxEventBytes <= 0 {
		opts.MaxEventBytes = DefaultMaxEventBytes
	}
	if opts.Logger == nil {
		level := slog.LevelInfo
		if opts.Debug {
			level = slog.LevelDebug
		}
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if opts.StoragePath == "" {
		opts.StoragePath = filepath.Join(os.TempDir(), fmt.Sprintf("apidash-events-%s.jsonl", endpointHash(opts.Endpoint)))
	}

	c := &Client{
		opts:        opts,
		httpClient:  newHTTPClient(),
		spillStore:  spill.New(opts.StoragePath, opts.MaxStorageBytes),
		buf:         newEventBuffer(opts.MaxBufferSize),
		metrics:     metrics.New(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if opts.Metrics {
		c.metrics.Enable(prometheus.NewRegistry())
	}
	if opts.DedupRedisAddr != "" {
		c.mirror = mirror.New(opts.DedupRedisAddr, opts.DedupTTL)
	}

	c.replayFromDisk()

	c.driver = newDriver(opts.FlushInterval, c.driveOnce)
	c.driver.start()
	c.installSignalHandlers()

	return c, nil
}

// endpointHash returns the 12-hex-char storage-path fragment derived from
// endpoint, used to build a default storage path.
func endpointHash(endpoint string) string {
	digest := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(digest[:])[:12]
}

// replayFromDisk loads whatever spill/recovery file exists into the
// buffer at startup, capped at the buffer's capacity. A batch already
// marked delivered in the mirror (some earlier process completed its send
// before the crash that left it on disk) is dropped instead of re-queued.
func (c *Client) replayFromDisk() {
	loaded, err := c.spillStore.Load(c.opts.MaxBufferSize)
	if err != nil {
		c.opts.Logger.Debug("apidash: disk replay failed", "error", err)
		return
	}

	var replayed, skipped int
	for _, b := range loaded.Batches {
		if c.mirror.AlreadyDelivered(context.Background(), b.ID) {
			skipped += len(b.Events)
			continue
		}
		for _, raw := range b.Events {
			var e Event
			if err := json.Unmarshal(raw, &e); err != nil {
				continue // undecodable event record, skip it
			}
			c.mu.Lock()
			c.buf.append(e)
			c.mu.Unlock()
			replayed++
		}
	}
	if replayed > 0 {
		c.opts.Logger.Debug("apidash: replayed events from disk", "count", replayed)
	}
	if skipped > 0 {
		c.opts.Logger.Debug("apidash: dropped already-delivered batches on replay", "count", skipped)
	}
}

// Track accepts one event record. It never raises, never blocks on I/O,
// and leaves the buffer at or below its configured maximum length.
func (c *Client) Track(e Event) {
	sanitized, ok := sanitizeEvent(e, c.opts.MaxEventBytes)
	if !ok {
		c.metrics.DroppedEvent("event_too_large")
		c.debugf("dropping oversized event")
		return
	}

	c.mu.Lock()
	appended := c.buf.append(sanitized)
	length := c.buf.len()
	c.mu.Unlock()

	if !appended {
		c.metrics.DroppedEvent("buffer_full")
		c.debugf("buffer full, dropping event")
		c.driver.nudge() // let the driver try to relieve pressure
		return
	}

	c.metrics.TrackedEvent()
	c.metrics.SetBufferLength(length)

	if length >= c.opts.BatchSize || length >= c.opts.MaxBufferSize {
		c.driver.nudge()
	}
}

// Flush synchronously drains and sends at most one batch, absorbing all
// errors internally (they are still routed through OnError).
func (c *Client) Flush() {
	c.drainAndSend()
}

// drainAndSend drains at most one batch and sends it, applying the
// resulting state transition. Nothing in this client needs drain and send
// decoupled, so they're one call.
func (c *Client) drainAndSend() {
	b, ok := c.drainBatch()
	if !ok {
		return
	}
	c.doFlush(b)
}

// drainBatch takes the next batch off the buffer under the mutex, or
// reports false if there is nothing eligible to send right now.
func (c *Client) drainBatch() (batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf.len() == 0 || c.inFlight || time.Now().Before(c.backoffUntil) {
		return batch{}, false
	}

	events := c.buf.drainPrefix(c.opts.BatchSize)
	if len(events) == 0 {
		return batch{}, false
	}
	c.inFlight = true
	c.metrics.SetBufferLength(c.buf.len())
	return batch{id: uuid.New().String(), events: events}, true
}

// doFlush calls the sender outside the mutex, then applies exactly one of
// the ok/non-retryable/retryable state transitions.
func (c *Client) doFlush(b batch) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := sendBatch(ctx, c.httpClient, c.opts.Endpoint, c.opts.APIKey, b)

	switch classify(err) {
	case outcomeOK:
		c.onSendOK(b)
	case outcomeNonRetryable:
		c.onSendNonRetryable(b, err)
	case outcomeRetryable:
		c.onSendRetryable(b, err)
	}
}

func classify(err error) sendOutcome {
	if err == nil {
		return outcomeOK
	}
	if IsRetryable(err) {
		return outcomeRetryable
	}
	return outcomeNonRetryable
}

func (c *Client) onSendOK(b batch) {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.backoffUntil = time.Time{}
	c.inFlight = false
	c.mu.Unlock()

	c.metrics.RecordSend("ok")
	c.metrics.SetConsecutiveFailures(0)
	c.spillStore.CleanupRecoveryFile()
	c.markDelivered(b.id)
}

// markDelivered records the batch as delivered in the optional cross-restart
// mirror, when configured. A no-op mirror makes this safe to call always.
func (c *Client) markDelivered(batchID string) {
	if c.mirror == nil {
		return
	}
	c.mirror.MarkDelivered(context.Background(), batchID)
}

func (c *Client) onSendNonRetryable(b batch, err error) {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	c.metrics.RecordSend("non_retryable")
	c.spillBatch(b)
	c.callOnError(err)
}

func (c *Client) onSendRetryable(b batch, err error) {
	c.mu.Lock()
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	var spillNow bool
	var overflow batch
	if failures >= maxConsecutiveFailures {
		c.consecutiveFailures = 0
		spillNow = true
	} else {
		// prepend clips to the free space; whatever does not fit is spilled.
		if space := c.buf.max - c.buf.len(); len(b.events) > space {
			if space < 0 {
				space = 0
			}
			overflow = batch{id: b.id, events: b.events[space:]}
		}
		c.buf.prepend(b.events)
		delay := backoffDelay(c.rng, baseBackoff, failures)
		c.backoffUntil = time.Now().Add(delay)
	}
	c.inFlight = false
	c.metrics.SetConsecutiveFailures(c.consecutiveFailures)
	c.metrics.SetBufferLength(c.buf.len())
	c.mu.Unlock()

	c.metrics.RecordSend("retryable")
	if spillNow {
		c.spillBatch(b)
	} else if len(overflow.events) > 0 {
		c.spillBatch(overflow)
	}
	c.callOnError(err)
}

// backoffDelay computes base · 2^(failures-1) · uniform(0.5, 1.0), an
// exponential backoff with jitter to avoid synchronized retries.
func backoffDelay(rng *rand.Rand, base time.Duration, failures int) time.Duration {
	multiplier := 1 << uint(failures-1)
	jitter := 0.5 + rng.Float64()*0.5
	return time.Duration(float64(base) * float64(multiplier) * jitter)
}

func (c *Client) spillBatch(b batch) {
	events := make([]any, len(b.events))
	for i, e := range b.events {
		events[i] = e
	}
	if err := c.spillStore.Write(b.id, events); err != nil {
		if spill.IsStorageFull(err) {
			c.metrics.DroppedEvent("storage_full")
			c.debugf("spill skipped, storage full")
			return
		}
		c.debugf("spill failed: %v", err)
		return
	}
	c.metrics.SpilledBatch()
}

// callOnError invokes the user callback, recovering any panic it raises so
// a misbehaving callback can never take down the driver.
func (c *Client) callOnError(err error) {
	if c.opts.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Debug("apidash: on_error callback panicked", "recovered", r)
		}
	}()
	c.opts.OnError(err)
}

// driveOnce is the driver's flushOne hook: one drain+send per wake, so a
// backlog drains over several wakes rather than all at once.
func (c *Client) driveOnce() {
	c.drainAndSend()
}

func (c *Client) debugf(format string, args ...any) {
	if !c.opts.Debug {
		return
	}
	c.opts.Logger.Debug(fmt.Sprintf(format, args...))
}

// installSignalHandlers wires SIGTERM/SIGINT to a best-effort spill
// followed by re-raising the signal so any other handler the host process
// relies on still runs. Go's signal package has no notion of "the
// previously installed handler" to chain to (unlike a POSIX sigaction
// chain); signal.Notify only ever adds a delivery target. So instead of
// swallowing the signal we re-raise it to the process after our own
// handler runs, which lets Go's default terminating behavior (or any
// other signal.Notify consumer in the process) proceed exactly as if we
// were not there.
func (c *Client) installSignalHandlers() {
	c.signalCh = make(chan os.Signal, 1)
	signal.Notify(c.signalCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig, ok := <-c.signalCh
		if !ok {
			return
		}
		c.mu.Lock()
		snapshot := c.buf.snapshotAndClear()
		c.mu.Unlock()
		if len(snapshot) > 0 {
			events := make([]any, len(snapshot))
			for i, e := range snapshot {
				events[i] = e
			}
			_ = c.spillStore.Write("", events)
		}

		signal.Stop(c.signalCh)
		if osSig, ok := sig.(syscall.Signal); ok {
			_ = syscall.Kill(syscall.Getpid(), osSig)
		}
	}()
}

// Shutdown is idempotent: stop the driver, attempt one final synchronous
// flush, spill whatever remains, and stop intercepting termination
// signals. Safe to call more than once and from more than one goroutine.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.driver.stop(5 * time.Second)

		c.drainAndSend()

		c.mu.Lock()
		remaining := c.buf.snapshotAndClear()
		c.mu.Unlock()
		if len(remaining) > 0 {
			events := make([]any, len(remaining))
			for i, e := range remaining {
				events[i] = e
			}
			_ = c.spillStore.Write("", events)
		}

		signal.Stop(c.signalCh)
		close(c.signalCh)
	})
}
