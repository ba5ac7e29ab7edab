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

// Package mirror implements an optional cross-restart delivery
// de-duplication marker: an idempotency marker per batch id, stored in
// Redis, checked before a recovered batch is re-queued and set once a
// batch is successfully delivered.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Evaler is the minimal surface this package needs from a Redis client,
// so tests can supply a fake without a live Redis server.
type Evaler interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Mirror is the optional delivery-dedup client. A nil *Mirror is valid and
// every method becomes a no-op (MarkDelivered) or permissive default
// (AlreadyDelivered always false), so the feature is off unless a Mirror
// is explicitly constructed.
type Mirror struct {
	client Evaler
	ttl    time.Duration
}

// New connects a Mirror to addr using github.com/redis/go-redis/v9. ttl
// defaults to 24h.
func New(addr string, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Mirror{client: &goRedisEvaler{redis.NewClient(&redis.Options{Addr: addr})}, ttl: ttl}
}

// NewWithEvaler builds a Mirror over a caller-supplied Evaler, for tests.
func NewWithEvaler(e Evaler, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Mirror{client: e, ttl: ttl}
}

func deliveredKey(batchID string) string {
	return fmt.Sprintf("apidash:delivered:%s", batchID)
}

// AlreadyDelivered reports whether batchID has a delivery marker. A nil
// Mirror, an empty batchID, or a Redis error all return false (treat as
// not-yet-delivered; the worst case is a re-send of the batch's events).
func (m *Mirror) AlreadyDelivered(ctx context.Context, batchID string) bool {
	if m == nil || batchID == "" {
		return false
	}
	ok, err := m.client.Exists(ctx, deliveredKey(batchID))
	if err != nil {
		return false
	}
	return ok
}

// MarkDelivered sets the delivery marker for batchID. Errors are swallowed:
// this is best-effort instrumentation, never a correctness requirement, and
// delivery guarantees hold with the mirror entirely absent.
func (m *Mirror) MarkDelivered(ctx context.Context, batchID string) {
	if m == nil || batchID == "" {
		return
	}
	_, _ = m.client.SetNX(ctx, deliveredKey(batchID), 1, m.ttl)
}

// goRedisEvaler adapts a real *redis.Client to the Evaler interface.
type goRedisEvaler struct {
	c *redis.Client
}

func (g *goRedisEvaler) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return g.c.SetNX(ctx, key, value, ttl).Result()
}

func (g *goRedisEvaler) Exists(ctx context.Context, key string) (bool, error) {
	n, err := g.c.Exists(ctx, key).Result()
	return n > 0, err
}
