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
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

// Replicator applies changes forwarded by the hub to this branch's
// local database. The hub has already resolved any cross-branch
// conflict before the batch reaches here; the replicator's own job is
// purely application plus loop prevention — never re-applying a
// change whose causal history this branch has already incorporated.
type Replicator struct {
	pool   *pgxpool.Pool
	schema string
	log    *zap.SugaredLogger

	mu      sync.Mutex
	applied vectorclock.Clock
}

func NewReplicator(pool *pgxpool.Pool, schema string, log *zap.SugaredLogger) *Replicator {
	return &Replicator{pool: pool, schema: schema, log: log, applied: vectorclock.New()}
}

// ApplyBatch applies every change in batch whose origin is not this
// branch's own clock history already. Changes are applied in order;
// a failure on one change is reported as a per-row FailedChange and
// does not abort the rest.
func (r *Replicator) ApplyBatch(ctx context.Context, batch protocol.SyncBatch) (applied int, failed []protocol.FailedChange) {
	incoming := vectorclock.Clock(batch.VectorClock)

	r.mu.Lock()
	alreadySeen := incoming.HappensBefore(r.applied) || incoming.Equal(r.applied)
	r.mu.Unlock()
	if alreadySeen {
		r.log.Debugw("skipping already-applied batch", "transaction", batch.TransactionId)
		return 0, nil
	}

	for i, change := range batch.Changes {
		if err := r.applyChange(ctx, change); err != nil {
			failed = append(failed, protocol.FailedChange{Index: i, Reason: err.Error()})
			continue
		}
		applied++
	}

	r.mu.Lock()
	r.applied.Merge(incoming)
	r.mu.Unlock()

	return applied, failed
}

func (r *Replicator) applyChange(ctx context.Context, change types.DatabaseChange) error {
	switch change.Operation {
	case types.OpInsert:
		return r.applyUpsert(ctx, change)
	case types.OpUpdate:
		return r.applyUpsert(ctx, change)
	case types.OpDelete:
		return r.applyDelete(ctx, change)
	default:
		return fmt.Errorf("unknown operation %q", change.Operation)
	}
}

// applyUpsert inserts or updates a row from its captured JSON
// representation using an upsert keyed on the primary key column
// "id" — the same convention the CDC trigger uses to extract
// primary_key when it captures the change. Table and column names
// arrive over the wire from peer branches, so every identifier is
// quoted before it is spliced into the statement; nothing a peer
// controls reaches the SQL text unescaped.
func (r *Replicator) applyUpsert(ctx context.Context, change types.DatabaseChange) error {
	var row map[string]interface{}
	if err := json.Unmarshal(change.Data, &row); err != nil {
		return fmt.Errorf("decode row data: %w", err)
	}
	if len(row) == 0 {
		return fmt.Errorf("empty row data for upsert")
	}

	columns := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	updates := make([]string, 0, len(row))
	args := make([]interface{}, 0, len(row))
	i := 1
	for col, val := range row {
		quoted := pgx.Identifier{col}.Sanitize()
		columns = append(columns, quoted)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
		}
		args = append(args, val)
		i++
	}

	conflictClause := "DO NOTHING"
	if len(updates) > 0 {
		conflictClause = "DO UPDATE SET " + joinComma(updates)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) %s",
		pgx.Identifier{r.schema, change.TableName}.Sanitize(),
		joinComma(columns), joinComma(placeholders), conflictClause,
	)
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("apply upsert to %s: %w", change.TableName, err)
	}
	return nil
}

func (r *Replicator) applyDelete(ctx context.Context, change types.DatabaseChange) error {
	var pk interface{}
	if err := json.Unmarshal(change.PrimaryKey, &pk); err != nil {
		return fmt.Errorf("decode primary key: %w", err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pgx.Identifier{r.schema, change.TableName}.Sanitize())
	if _, err := r.pool.Exec(ctx, query, pk); err != nil {
		return fmt.Errorf("apply delete to %s: %w", change.TableName, err)
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
