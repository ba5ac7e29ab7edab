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
	"encoding/json"
	"strings"
	"time"
)

// sanitizeEvent normalizes and bounds a single event record. It never
// raises; ok is false when the event must be dropped, which counts as a
// drop rather than an error.
func sanitizeEvent(e Event, maxEventBytes int) (Event, bool) {
	if len(e.Method) > maxMethodLength {
		e.Method = e.Method[:maxMethodLength]
	}
	e.Method = strings.ToUpper(e.Method)

	if len(e.Path) > maxPathLength {
		e.Path = e.Path[:maxPathLength]
	}

	if len(e.ConsumerID) > maxConsumerIDLength {
		e.ConsumerID = e.ConsumerID[:maxConsumerIDLength]
	}

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return Event{}, false
	}
	if len(raw) <= maxEventBytes {
		return e, true
	}

	// Over the per-event ceiling: drop metadata and re-check once.
	e.Metadata = nil
	raw, err = json.Marshal(e)
	if err != nil || len(raw) > maxEventBytes {
		return Event{}, false
	}
	return e, true
}
