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

// Package spill implements an on-disk batch spill-over and crash-recovery
// store: an append-only, line-delimited JSON file of batches, bounded by a
// byte ceiling, replayed once at startup through a rename-to-".recovering"
// protocol.
package spill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Store owns one spill file. It has no lock of its own: the size check and
// the append in Write are not atomic together, and Load and
// CleanupRecoveryFile update the remembered recovery path unsynchronized.
type Store struct {
	path         string
	maxBytes     int64
	recoveryPath string // set once a recovery file has been claimed at startup
}

// New returns a Store bound to path. No file is created until the first
// Write call.
func New(path string, maxBytes int64) *Store {
	return &Store{path: path, maxBytes: maxBytes}
}

// record is the on-disk shape of one spilled batch: its correlation id,
// carried through so a recovered batch can be matched against a delivery
// marker, plus the event records themselves.
type record struct {
	BatchID string `json:"batch_id"`
	Events  []any  `json:"events"`
}

// Write appends one batch as a single JSON-object line, tagged with
// batchID. If the file is already at or above maxBytes, nothing is written
// and the storage-full sentinel is returned (see IsStorageFull).
func (s *Store) Write(batchID string, events []any) error {
	if len(events) == 0 {
		return nil
	}

	size, err := fileSize(s.path)
	if err == nil && size >= s.maxBytes {
		return errStorageFull
	}

	line, err := json.Marshal(record{BatchID: batchID, Events: events})
	if err != nil {
		return fmt.Errorf("spill: marshal batch: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("spill: open %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("spill: write: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("spill: write: %w", err)
	}
	return w.Flush()
}

var errStorageFull = fmt.Errorf("spill: storage file at or over capacity")

// IsStorageFull reports whether err is the sentinel returned by Write when
// the spill file is already at its byte ceiling.
func IsStorageFull(err error) bool {
	return err == errStorageFull
}

// Batch is one spilled batch as replayed from disk.
type Batch struct {
	// ID is the batch's correlation id, empty for batches spilled before
	// ids were tagged (or for the bare-array legacy line shape, tolerated
	// below). An empty ID never matches a delivery marker.
	ID     string
	Events []json.RawMessage
}

// Loaded is the result of replaying the spill/recovery file at startup.
type Loaded struct {
	// Batches is every well-formed line, in file order, capped once the
	// total event count across all batches reaches maxEvents.
	Batches []Batch
	// RecoveryPath is non-empty when a file was found and is now the
	// ".recovering" path whose deletion is deferred until the next
	// successful send. Empty if neither the recovery file nor the main
	// spill file existed.
	RecoveryPath string
}

// Load implements the startup recovery protocol: try
// "<path>.recovering" first, then "<path>". Whichever is found is loaded
// and, if it wasn't already the recovery file, atomically renamed to
// "<path>.recovering" so a repeat startup doesn't double-load it. Stops
// once maxEvents have been collected.
func (s *Store) Load(maxEvents int) (Loaded, error) {
	recoveryPath := s.path + ".recovering"

	for _, candidate := range []string{recoveryPath, s.path} {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}

		batches, err := readBatchLines(candidate, maxEvents)
		if err != nil {
			return Loaded{}, fmt.Errorf("spill: read %s: %w", candidate, err)
		}

		if candidate == s.path {
			if err := os.Rename(candidate, recoveryPath); err != nil {
				// Fall back to deleting the unrecoverable original rather
				// than leaving a file we can neither rename nor safely
				// reread next time.
				_ = os.Remove(candidate)
			}
		}

		s.recoveryPath = recoveryPath
		return Loaded{Batches: batches, RecoveryPath: recoveryPath}, nil
	}

	return Loaded{}, nil
}

// CleanupRecoveryFile deletes the recovery file claimed by the most recent
// Load call. Called once the next send succeeds.
func (s *Store) CleanupRecoveryFile() {
	if s.recoveryPath == "" {
		return
	}
	_ = os.Remove(s.recoveryPath)
	s.recoveryPath = ""
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// readBatchLines parses a spill file line by line. Each line is one of:
// a `{"batch_id": ..., "events": [...]}` object (the current shape), a
// bare JSON array of event objects, or a bare event object (the latter
// two tolerated as a pre-batch-id legacy shape, with an empty batch id).
// Anything else, blank lines, truncated or corrupt JSON, is skipped
// silently. Reading stops once maxEvents raw event objects have been
// collected across all batches.
func readBatchLines(path string, maxEvents int) ([]Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Batch
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		batch, ok := parseBatchLine(line)
		if !ok || len(batch.Events) == 0 {
			continue
		}

		if total+len(batch.Events) > maxEvents {
			batch.Events = batch.Events[:maxEvents-total]
		}
		out = append(out, batch)
		total += len(batch.Events)

		if total >= maxEvents {
			break
		}
	}

	return out, scanner.Err()
}

func parseBatchLine(line []byte) (Batch, bool) {
	if looksLikeObject(line) {
		var rec struct {
			BatchID string            `json:"batch_id"`
			Events  []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(line, &rec); err == nil && len(rec.Events) > 0 {
			return Batch{ID: rec.BatchID, Events: rec.Events}, true
		}

		// Not the tagged shape: tolerate a bare event object, the
		// pre-batch-id legacy line.
		var asObject json.RawMessage
		if err := json.Unmarshal(line, &asObject); err == nil {
			return Batch{Events: []json.RawMessage{asObject}}, true
		}
		return Batch{}, false
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(line, &asArray); err == nil {
		var events []json.RawMessage
		for _, elem := range asArray {
			if looksLikeObject(elem) {
				events = append(events, elem)
			}
		}
		if len(events) == 0 {
			return Batch{}, false
		}
		return Batch{Events: events}, true
	}

	return Batch{}, false
}

func looksLikeObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
