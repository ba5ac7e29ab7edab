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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// retryableStatus is the fixed set of HTTP statuses classified as
// transient.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// newHTTPClient builds the transport used for every send: keep-alive with
// a modest idle pool, since this client issues many small sequential POSTs
// to one host over the life of the process and never more than one batch
// concurrently.
func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: sendTimeout}
}

// sendBatch issues one POST containing the batch and classifies the
// outcome. One call is exactly one attempt. sendBatch never retries
// internally; retry/backoff is the caller's job.
func sendBatch(ctx context.Context, client *http.Client, endpoint, apiKey string, b batch) error {
	body, err := json.Marshal(b.events)
	if err != nil {
		return &NonRetryableSendError{Reason: fmt.Sprintf("marshal batch: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &RetryableSendError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("x-apidash-sdk", "go-client")
	if b.id != "" {
		req.Header.Set("x-batch-id", b.id)
	}

	resp, err := client.Do(req)
	if err != nil {
		// DNS, connect, timeout, TLS, reset: all transport failures are
		// retryable.
		return &RetryableSendError{Reason: err.Error()}
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := readSnippet(resp.Body, 1024)
	if retryableStatus[resp.StatusCode] {
		return &RetryableSendError{StatusCode: resp.StatusCode, Reason: snippet}
	}
	return &NonRetryableSendError{StatusCode: resp.StatusCode, Reason: snippet}
}

func readSnippet(r io.Reader, limit int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}
