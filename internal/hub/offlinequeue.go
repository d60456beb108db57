// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
)

// OfflineQueue holds messages addressed to a branch that is not
// currently connected, in a Redis list keyed per branch so a
// reconnecting branch drains exactly its own backlog. Each list
// carries its own TTL, refreshed on every push, so a branch that never
// comes back does not hold memory forever.
type OfflineQueue struct {
	client *redis.Client
	codec  protocol.MessageCodec
	ttl    time.Duration
	metric prometheusGaugeSetter
}

// prometheusGaugeSetter is the minimal surface OfflineQueue needs from
// Metrics.OfflineQueueDepth, kept narrow so tests can swap in a no-op.
type prometheusGaugeSetter interface {
	Add(float64)
}

func NewOfflineQueue(client *redis.Client, codec protocol.MessageCodec, ttl time.Duration, depthGauge prometheusGaugeSetter) *OfflineQueue {
	return &OfflineQueue{client: client, codec: codec, ttl: ttl, metric: depthGauge}
}

func redisKey(id types.QualifiedBranchId) string {
	return fmt.Sprintf("syncfabric:offline:%s", id.String())
}

// Enqueue appends m to target's backlog and refreshes its TTL.
func (q *OfflineQueue) Enqueue(target types.QualifiedBranchId, m protocol.Message) error {
	encoded, err := q.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encode queued message: %w", err)
	}
	ctx := context.Background()
	key := redisKey(target)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, encoded)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue offline message: %w", err)
	}
	if q.metric != nil {
		q.metric.Add(1)
	}
	return nil
}

// Drain pops and returns every queued message for id, in FIFO order,
// deleting the backlog as it goes. Callers must send these before
// accepting any new traffic from the reconnecting session, so a branch
// never observes a new change before the backlog that causally
// precedes it.
func (q *OfflineQueue) Drain(id types.QualifiedBranchId) ([]protocol.Message, error) {
	ctx := context.Background()
	key := redisKey(id)

	raw, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("drain offline queue: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := q.client.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("clear offline queue: %w", err)
	}
	if q.metric != nil {
		q.metric.Add(-float64(len(raw)))
	}

	out := make([]protocol.Message, 0, len(raw))
	for _, entry := range raw {
		m, err := q.codec.Decode([]byte(entry))
		if err != nil {
			return nil, fmt.Errorf("decode queued message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
