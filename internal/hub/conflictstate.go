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
	"sync"

	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

// rowKey identifies one row within one tenant, the granularity at
// which the hub tracks the last change it has seen in order to detect
// concurrent writes arriving from different branches.
type rowKey struct {
	tenant types.TenantId
	table  string
	pk     string
}

type lastSeen struct {
	change types.DatabaseChange
	clock  vectorclock.Clock
	origin types.BranchId
}

// ConflictState is the hub's in-memory view of the most recent change
// per row, per tenant. It exists purely to let the router detect
// concurrent writes across branches before they land anywhere durable;
// branches remain the source of truth for their own local database.
type ConflictState struct {
	mu    sync.Mutex
	rows  map[rowKey]lastSeen
}

func NewConflictState() *ConflictState {
	return &ConflictState{rows: make(map[rowKey]lastSeen)}
}

// Observe records change as the latest write from origin and reports
// whether it conflicts with whatever the hub last saw for this row. On
// a conflict it returns the prior observation too, so the caller can
// resolve between old and new.
func (c *ConflictState) Observe(tenant types.TenantId, change types.DatabaseChange, clock vectorclock.Clock, origin types.BranchId) (conflicted bool, prior lastSeen) {
	key := rowKey{tenant: tenant, table: change.TableName, pk: string(change.PrimaryKey)}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.rows[key]
	if ok && clock.ConcurrentWith(existing.clock) && existing.origin != origin {
		conflicted = true
		prior = existing
	}

	merged := clock.Clone()
	if ok {
		merged.Merge(existing.clock)
	}
	c.rows[key] = lastSeen{change: change, clock: merged, origin: origin}
	return conflicted, prior
}

// Commit overwrites the stored state for a row with a resolved winner,
// used after conflict resolution so the next Observe compares against
// the resolved value rather than either original contender.
func (c *ConflictState) Commit(tenant types.TenantId, change types.DatabaseChange, clock vectorclock.Clock, origin types.BranchId) {
	key := rowKey{tenant: tenant, table: change.TableName, pk: string(change.PrimaryKey)}
	c.mu.Lock()
	c.rows[key] = lastSeen{change: change, clock: clock, origin: origin}
	c.mu.Unlock()
}
