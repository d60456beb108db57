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

package cdc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// These tests exercise the Engine's pure, connection-independent
// behavior; query execution needs a live Postgres instance and is
// deliberately left out so the suite runs without a database.

func TestMarkSyncedNoopOnEmptyIds(t *testing.T) {
	e := &Engine{}
	err := e.MarkSynced(nil, "public", nil)
	require.NoError(t, err, "marking zero ids must never touch the pool")
}

func TestNewEngineRetainsTrackedTables(t *testing.T) {
	tables := []string{"users", "orders"}
	e := NewEngine(nil, tables, nil)
	require.Equal(t, tables, e.trackedTables)
}
