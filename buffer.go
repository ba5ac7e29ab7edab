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

// eventBuffer is a bounded, ordered FIFO queue of events. It has no keys,
// only insertion order, and batches are always drawn from the front.
//
// All methods assume the caller already holds Client.mu; this type has no
// lock of its own. It is meant to be guarded by the same mutex that covers
// in-flight/failure/backoff state.
type eventBuffer struct {
	events []Event
	max    int
}

func newEventBuffer(max int) *eventBuffer {
	return &eventBuffer{max: max}
}

func (b *eventBuffer) len() int {
	return len(b.events)
}

// append adds e to the back of the buffer. It reports false (full) without
// modifying the buffer if there is no room.
func (b *eventBuffer) append(e Event) bool {
	if len(b.events) >= b.max {
		return false
	}
	b.events = append(b.events, e)
	return true
}

// drainPrefix removes and returns the first up-to-n events.
func (b *eventBuffer) drainPrefix(n int) []Event {
	if n > len(b.events) {
		n = len(b.events)
	}
	if n == 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, b.events[:n])
	remaining := make([]Event, len(b.events)-n)
	copy(remaining, b.events[n:])
	b.events = remaining
	return out
}

// prepend re-inserts events at the front, clipping to the remaining
// capacity; excess is silently discarded. The retryable-failure path in
// client.go spills whatever does not fit to disk, so anything dropped here
// is never the only copy.
func (b *eventBuffer) prepend(events []Event) {
	space := b.max - len(b.events)
	if space <= 0 {
		return
	}
	if len(events) > space {
		events = events[:space]
	}
	merged := make([]Event, 0, len(events)+len(b.events))
	merged = append(merged, events...)
	merged = append(merged, b.events...)
	b.events = merged
}

// snapshotAndClear returns all buffered events and empties the buffer, for
// use during shutdown.
func (b *eventBuffer) snapshotAndClear() []Event {
	out := b.events
	b.events = nil
	return out
}
