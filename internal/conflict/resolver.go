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

// Package conflict is a pure function library deciding, given two
// concurrent edits to the same row, which one wins.
package conflict

import (
	"bytes"
	"fmt"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

// Strategy selects how Resolver breaks a detected conflict.
type Strategy = protocol.ConflictStrategy

const (
	LastWriteWins    = protocol.StrategyLastWriteWins
	FirstWriteWins   = protocol.StrategyFirstWriteWins
	ManualResolution = protocol.StrategyManualResolution
	MergeFields      = protocol.StrategyMergeFields
)

// Resolver detects and resolves conflicts using one configured default
// strategy (per-tenant in practice — see internal/hub, which looks the
// strategy up per tenant before calling Resolve).
type Resolver struct {
	DefaultStrategy Strategy
}

func NewResolver(strategy Strategy) *Resolver {
	return &Resolver{DefaultStrategy: strategy}
}

// Detect reports whether a and b conflict: same table, same primary
// key, and concurrent vector clocks. Causally-ordered or equal clocks
// never conflict — the later one supersedes.
func Detect(a, b types.DatabaseChange, clockA, clockB vectorclock.Clock) bool {
	if a.TableName != b.TableName {
		return false
	}
	if !bytes.Equal(a.PrimaryKey, b.PrimaryKey) {
		return false
	}
	return clockA.ConcurrentWith(clockB)
}

// Resolve picks a winner for a detected conflict between a (treated as
// the "local" side) and b (the "remote" side) under r's strategy.
func (r *Resolver) Resolve(a, b types.DatabaseChange) (types.DatabaseChange, protocol.ConflictResolutionType, error) {
	switch r.DefaultStrategy {
	case LastWriteWins:
		return lastWriteWins(a, b)
	case FirstWriteWins:
		return firstWriteWins(a, b)
	case ManualResolution:
		return types.DatabaseChange{}, "", fmt.Errorf("%w: manual resolution required", types.ErrSyncConflict)
	case MergeFields:
		return r.mergeFields(a, b)
	default:
		return types.DatabaseChange{}, "", fmt.Errorf("unknown conflict strategy %q", r.DefaultStrategy)
	}
}

// lastWriteWins: winner is the change with the greater timestamp; ties
// are broken by the greater `from` lexicographically. DatabaseChange
// does not itself carry `from`, so callers that need the tiebreak
// compare origin branch ids via ResolveWithOrigin.
func lastWriteWins(a, b types.DatabaseChange) (types.DatabaseChange, protocol.ConflictResolutionType, error) {
	if a.Timestamp.After(b.Timestamp) {
		return a, protocol.ResolutionLocalWins, nil
	}
	return b, protocol.ResolutionRemoteWins, nil
}

func firstWriteWins(a, b types.DatabaseChange) (types.DatabaseChange, protocol.ConflictResolutionType, error) {
	if a.Timestamp.Before(b.Timestamp) {
		return a, protocol.ResolutionLocalWins, nil
	}
	return b, protocol.ResolutionRemoteWins, nil
}

// mergeFields merges each column from the change with the greater
// timestamp for that column. Per-column provenance is not tracked on
// DatabaseChange (the row is opaque JSON), so this degrades to
// last-write-wins until field-level provenance exists.
func (r *Resolver) mergeFields(a, b types.DatabaseChange) (types.DatabaseChange, protocol.ConflictResolutionType, error) {
	winner, _, err := lastWriteWins(a, b)
	if err != nil {
		return types.DatabaseChange{}, "", err
	}
	return winner, protocol.ResolutionMerged, nil
}

// ResolveWithOrigin breaks LastWriteWins/FirstWriteWins timestamp ties
// using the origin branch ids, compared lexicographically. originA and
// originB are the sending branch of a and b respectively.
func (r *Resolver) ResolveWithOrigin(a, b types.DatabaseChange, originA, originB types.BranchId) (types.DatabaseChange, protocol.ConflictResolutionType, error) {
	switch r.DefaultStrategy {
	case LastWriteWins:
		if a.Timestamp.Equal(b.Timestamp) {
			if originA > originB {
				return a, protocol.ResolutionLocalWins, nil
			}
			return b, protocol.ResolutionRemoteWins, nil
		}
	case FirstWriteWins:
		if a.Timestamp.Equal(b.Timestamp) {
			if originA < originB {
				return a, protocol.ResolutionLocalWins, nil
			}
			return b, protocol.ResolutionRemoteWins, nil
		}
	}
	return r.Resolve(a, b)
}
