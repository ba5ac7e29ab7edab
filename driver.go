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
	"sync"
	"time"
)

// driver is the single background worker that flushes buffered events. It
// wakes on a timer or an explicit signal, drains at most one batch per
// wake, and flushes it inline.
type driver struct {
	interval time.Duration
	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	// flushOne is called with no arguments on every wake that isn't a
	// shutdown; it is the client's drainBatch+doFlush pair.
	flushOne func()
}

func newDriver(interval time.Duration, flushOne func()) *driver {
	return &driver{
		interval: interval,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		flushOne: flushOne,
	}
}

// start launches the worker goroutine. Call once.
func (d *driver) start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run()
	}()
}

func (d *driver) run() {
	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		case <-timer.C:
		}

		// A wake/timer fire races with shutdown; re-check done before
		// doing any work so a concurrent stop() always wins.
		select {
		case <-d.done:
			return
		default:
			d.flushOne()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.interval)
	}
}

// nudge wakes the worker without blocking. A full channel means a wake is
// already pending, which is equivalent to this one.
func (d *driver) nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop signals the worker to exit and waits up to timeout for it to do so.
func (d *driver) stop(timeout time.Duration) {
	close(d.done)
	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
	}
}
