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
	"net/http"
	"strconv"
	"time"
)

// Middleware wraps an http.Handler, tracking one Event per served request.
// Grounded on the original ApiDashWSGI adapter: wrap the response writer to
// capture status code and bytes written, time the handler, and call Track
// once the handler returns, including when it panics.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		defer func() {
			elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
			status := rw.statusCode
			if p := recover(); p != nil {
				status = http.StatusInternalServerError
				c.Track(Event{
					Method:         r.Method,
					Path:           r.URL.Path,
					StatusCode:     status,
					ResponseTimeMs: round2(elapsedMs),
					RequestSize:    requestContentLength(r),
					ResponseSize:   int64(rw.size),
					ConsumerID:     DefaultIdentifyConsumer(r.Header),
				})
				panic(p)
			}
			c.Track(Event{
				Method:         r.Method,
				Path:           r.URL.Path,
				StatusCode:     status,
				ResponseTimeMs: round2(elapsedMs),
				RequestSize:    requestContentLength(r),
				ResponseSize:   int64(rw.size),
				ConsumerID:     DefaultIdentifyConsumer(r.Header),
			})
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseRecorder wraps http.ResponseWriter to accumulate the status code
// and byte count written, mirroring the original's _ResponseWrapper.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	size        int
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func requestContentLength(r *http.Request) int64 {
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	n, err := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
