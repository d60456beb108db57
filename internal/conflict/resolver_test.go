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

package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

func change(table string, pk string, ts int64) types.DatabaseChange {
	return types.DatabaseChange{
		TableName:  table,
		Operation:  types.OpUpdate,
		PrimaryKey: []byte(pk),
		Data:       []byte(`{}`),
		Timestamp:  time.Unix(ts, 0).UTC(),
	}
}

func TestDetectRequiresSameTableAndKey(t *testing.T) {
	clockA := vectorclock.Clock{"b1": 1}
	clockB := vectorclock.Clock{"b2": 1}

	a := change("users", `1`, 100)
	b := change("orders", `1`, 100)
	require.False(t, Detect(a, b, clockA, clockB), "different tables never conflict")

	b2 := change("users", `2`, 100)
	require.False(t, Detect(a, b2, clockA, clockB), "different primary keys never conflict")
}

func TestDetectRequiresConcurrentClocks(t *testing.T) {
	a := change("users", `1`, 100)
	b := change("users", `1`, 200)

	causal := vectorclock.Clock{"b1": 1}
	causalLater := causal.Clone()
	causalLater.Increment("b1")
	require.False(t, Detect(a, b, causal, causalLater), "causally ordered clocks do not conflict")

	concA := vectorclock.Clock{"b1": 1}
	concB := vectorclock.Clock{"b2": 1}
	require.True(t, Detect(a, b, concA, concB))
}

func TestLastWriteWinsPicksGreaterTimestamp(t *testing.T) {
	r := NewResolver(LastWriteWins)
	a := change("users", `1`, 100) // earlier write
	b := change("users", `1`, 200) // later write

	winner, tag, err := r.Resolve(a, b)
	require.NoError(t, err)
	require.Equal(t, b, winner)
	require.Equal(t, protocol.ResolutionRemoteWins, tag)
}

func TestFirstWriteWinsPicksLesserTimestamp(t *testing.T) {
	r := NewResolver(FirstWriteWins)
	a := change("users", `1`, 100)
	b := change("users", `1`, 200)

	winner, tag, err := r.Resolve(a, b)
	require.NoError(t, err)
	require.Equal(t, a, winner)
	require.Equal(t, protocol.ResolutionLocalWins, tag)
}

func TestManualResolutionNeverAutoApplies(t *testing.T) {
	r := NewResolver(ManualResolution)
	a := change("users", `1`, 100)
	b := change("users", `1`, 200)

	_, _, err := r.Resolve(a, b)
	require.ErrorIs(t, err, types.ErrSyncConflict)
}

func TestLastWriteWinsTieBrokenByGreaterFrom(t *testing.T) {
	r := NewResolver(LastWriteWins)
	a := change("users", `1`, 100)
	b := change("users", `1`, 100)

	winner, tag, err := r.ResolveWithOrigin(a, b, "b1", "b2")
	require.NoError(t, err)
	require.Equal(t, b, winner, "b2 > b1 lexicographically")
	require.Equal(t, protocol.ResolutionRemoteWins, tag)
}

func TestMergeFieldsDegradesToLastWriteWins(t *testing.T) {
	r := NewResolver(MergeFields)
	a := change("users", `1`, 100)
	b := change("users", `1`, 200)

	winner, tag, err := r.Resolve(a, b)
	require.NoError(t, err)
	require.Equal(t, b, winner)
	require.Equal(t, protocol.ResolutionMerged, tag)
}
