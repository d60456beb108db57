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

package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/cdc"
	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

const fetchBatchLimit = 500

// SyncLoop periodically drains the local CDC log and ships it to the
// hub, and applies whatever the hub routes back in the other
// direction. The two directions run independently: draining never
// waits on an inbound apply, and vice versa.
type SyncLoop struct {
	cfg    Config
	engine *cdc.Engine
	conn   *Client
	repl   *Replicator
	log    *zap.SugaredLogger

	clock vectorclock.Clock
}

func NewSyncLoop(cfg Config, engine *cdc.Engine, conn *Client, repl *Replicator, log *zap.SugaredLogger) *SyncLoop {
	clock := vectorclock.New()
	clock[string(cfg.BranchId)] = 0
	return &SyncLoop{cfg: cfg, engine: engine, conn: conn, repl: repl, log: log, clock: clock}
}

// Run blocks, draining pending changes on cfg.SyncInterval until ctx
// is cancelled.
func (s *SyncLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.drainOnce(ctx); err != nil {
				s.log.Warnw("sync drain failed", "error", err)
			}
		}
	}
}

func (s *SyncLoop) drainOnce(ctx context.Context) error {
	pending, err := s.engine.FetchPending(ctx, s.cfg.DatabaseSchema, fetchBatchLimit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	changes := make([]types.DatabaseChange, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, entry := range pending {
		changes = append(changes, entry.ToDatabaseChange())
		ids = append(ids, entry.Id)
	}

	s.clock.Increment(string(s.cfg.BranchId))
	batch := protocol.SyncBatch{
		TransactionId: uuid.NewString(),
		VectorClock:   s.clock,
		Changes:       changes,
		IsFinal:       true,
	}
	msg := protocol.NewMessage(s.cfg.BranchId, nil, protocol.Payload{Type: protocol.TypeSyncBatch, Data: batch})
	if err := s.conn.Send(msg); err != nil {
		return err
	}

	// Marked synced optimistically: the wire is at-least-once, so a
	// crash between send and mark can redeliver, which the hub's
	// conflict detector and this branch's own vector clock both
	// tolerate as a duplicate rather than a second distinct write.
	return s.engine.MarkSynced(ctx, s.cfg.DatabaseSchema, ids)
}

// HandleInbound is the onMessage callback wired into Client; it
// applies SyncBatch frames the hub forwards from other branches and
// acknowledges them to their origin. HeartbeatAck frames are ignored;
// outgoing heartbeats come from Client's own ticker.
func (s *SyncLoop) HandleInbound(m protocol.Message) {
	switch m.Payload.Type {
	case protocol.TypeSyncBatch:
		batch, ok := m.Payload.Data.(protocol.SyncBatch)
		if !ok {
			return
		}
		ctx := context.Background()
		start := time.Now()
		applied, failed := s.repl.ApplyBatch(ctx, batch)
		s.log.Infow("applied inbound batch", "transaction", batch.TransactionId, "applied", applied, "failed", len(failed))

		origin := m.From
		ack := protocol.NewMessage(s.cfg.BranchId, &origin, protocol.Payload{
			Type: protocol.TypeSyncAck,
			Data: protocol.SyncAck{TransactionId: batch.TransactionId, AppliedChanges: applied, FailedChanges: failed},
		})
		if err := s.conn.Send(ack); err != nil {
			s.log.Warnw("failed to ack inbound batch", "transaction", batch.TransactionId, "error", err)
		}
		if batch.IsFinal {
			complete := protocol.NewMessage(s.cfg.BranchId, &origin, protocol.Payload{
				Type: protocol.TypeSyncComplete,
				Data: protocol.SyncComplete{
					TransactionId: batch.TransactionId,
					TotalChanges:  len(batch.Changes),
					DurationMs:    uint64(time.Since(start).Milliseconds()),
				},
			})
			if err := s.conn.Send(complete); err != nil {
				s.log.Warnw("failed to send sync complete", "transaction", batch.TransactionId, "error", err)
			}
		}
	case protocol.TypeHeartbeatAck:
	case protocol.TypeConflictDetected:
		s.log.Warnw("manual conflict requires resolution", "message", m.Id)
	default:
		s.log.Debugw("unhandled inbound payload", "type", m.Payload.Type)
	}
}
