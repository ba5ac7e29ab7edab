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

// Command apidash-demo runs a tiny HTTP server instrumented with the
// client's Middleware, so the whole construct/track/flush/shutdown
// lifecycle can be exercised end to end without a host application.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apidash "github.com/apidash/go-client"
)

func main() {
	apiKey := flag.String("api_key", "demo-key", "API key sent as x-api-key to the ingestion endpoint")
	endpoint := flag.String("endpoint", "https://localhost:9443/v1/events", "Ingestion endpoint URL")
	flushInterval := flag.Duration("flush_interval", apidash.DefaultFlushInterval, "Maximum time between background flushes")
	batchSize := flag.Int("batch_size", apidash.DefaultBatchSize, "Max events per network request")
	metricsEnabled := flag.Bool("metrics", false, "Enable Prometheus instrumentation")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the demo app")
	debug := flag.Bool("debug", false, "Emit operational diagnostics")
	flag.Parse()

	client, err := apidash.New(apidash.Options{
		APIKey:        *apiKey,
		Endpoint:      *endpoint,
		FlushInterval: *flushInterval,
		BatchSize:     *batchSize,
		Metrics:       *metricsEnabled,
		Debug:         *debug,
		OnError: func(err error) {
			log.Printf("apidash: send failed: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("apidash: construct failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello from the apidash demo app")
	})

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: client.Middleware(mux),
	}

	go func() {
		fmt.Printf("demo app listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v\n", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nshutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	// client.Shutdown() waits up to 5s for its driver to stop plus up to one
	// 5s send for its final flush, and is safe to call after the HTTP server
	// has already stopped accepting traffic.
	client.Shutdown()

	fmt.Println("stopped.")
}
