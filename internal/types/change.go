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

package types

import (
	"encoding/json"
	"time"
)

// Operation is the kind of row mutation a DatabaseChange captures.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// DatabaseChange is one captured row mutation, as carried on the wire in
// a SyncBatch.
type DatabaseChange struct {
	TableName     string          `json:"table_name"`
	Operation     Operation       `json:"operation"`
	PrimaryKey    json.RawMessage `json:"primary_key"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion uint32          `json:"schema_version"`
}

// ChangeLogEntry is the server-side (at-branch) row of sync_change_log.
// Entries are produced in database-commit order for a given row;
// Synced transitions from false to true exactly once, via MarkSynced.
type ChangeLogEntry struct {
	Id        int64
	TableName string
	Operation Operation
	PrimaryKey json.RawMessage
	RowData   json.RawMessage
	ChangedAt time.Time
	Synced    bool
	BranchId  BranchId
}

// ToDatabaseChange projects the log entry into the wire shape sent in a
// SyncBatch. schema_version is not yet tracked per entry, so it is
// hard-coded to 1 until schema negotiation gates replication.
func (e ChangeLogEntry) ToDatabaseChange() DatabaseChange {
	return DatabaseChange{
		TableName:     e.TableName,
		Operation:     e.Operation,
		PrimaryKey:    e.PrimaryKey,
		Data:          e.RowData,
		Timestamp:     e.ChangedAt,
		SchemaVersion: 1,
	}
}
