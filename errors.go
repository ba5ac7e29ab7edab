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

import "fmt"

// ConfigError is raised synchronously by New when options fail validation.
// It is the only error kind visible to the caller of construction.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("apidash: config error: %s", e.Message)
}

// RetryableSendError classifies a send failure that should be retried with
// backoff: a 429, 500, 502, 503 or 504 response, or a transport-level
// failure.
type RetryableSendError struct {
	StatusCode int // 0 for transport failures
	Reason     string
}

func (e *RetryableSendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("apidash: retryable send error: %s", e.Reason)
	}
	return fmt.Sprintf("apidash: retryable send error (HTTP %d): %s", e.StatusCode, e.Reason)
}

// NonRetryableSendError classifies a send failure that will not succeed on
// retry: any non-2xx status outside the retryable set.
type NonRetryableSendError struct {
	StatusCode int
	Reason     string
}

func (e *NonRetryableSendError) Error() string {
	return fmt.Sprintf("apidash: non-retryable send error (HTTP %d): %s", e.StatusCode, e.Reason)
}

// IsRetryable reports whether err is a *RetryableSendError.
func IsRetryable(err error) bool {
	_, ok := err.(*RetryableSendError)
	return ok
}
