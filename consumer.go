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
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// HashConsumerID returns a short, irreversible identifier for a raw
// credential value: "hash_" followed by the first 12 hex characters of its
// SHA-256 digest.
func HashConsumerID(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return "hash_" + hex.EncodeToString(digest[:])[:12]
}

// DefaultIdentifyConsumer extracts a consumer identity from request
// headers: an "x-api-key" header is used verbatim (it's already an opaque
// identifier); otherwise "authorization" is hashed, since it carries
// credentials that must not be logged or transmitted in the clear;
// otherwise the consumer is unknown.
func DefaultIdentifyConsumer(h http.Header) string {
	if apiKey := h.Get("x-api-key"); apiKey != "" {
		return apiKey
	}
	if auth := h.Get("authorization"); auth != "" {
		return HashConsumerID(auth)
	}
	return ""
}
