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

// Package protocol defines the typed message envelope and payload
// taxonomy shared by the hub broker and every branch client, plus the
// two interchangeable wire codecs (text and compact-binary).
package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/erigontech/syncfabric/internal/types"
)

// PayloadType names one of the ~20 payload variants. Both codecs write
// it verbatim into the payload's "type" field; the binary codec carries
// that same JSON payload object as one length-prefixed field.
type PayloadType string

const (
	TypeConnect            PayloadType = "Connect"
	TypeConnectAck         PayloadType = "ConnectAck"
	TypeDisconnect         PayloadType = "Disconnect"
	TypeHeartbeat          PayloadType = "Heartbeat"
	TypeHeartbeatAck       PayloadType = "HeartbeatAck"
	TypeSyncRequest        PayloadType = "SyncRequest"
	TypeSyncBatch          PayloadType = "SyncBatch"
	TypeSyncAck            PayloadType = "SyncAck"
	TypeSyncComplete       PayloadType = "SyncComplete"
	TypeConflictDetected   PayloadType = "ConflictDetected"
	TypeConflictResolved   PayloadType = "ConflictResolved"
	TypeSchemaVersion      PayloadType = "SchemaVersion"
	TypeSchemaUpdate       PayloadType = "SchemaUpdate"
	TypeRouteMessage       PayloadType = "RouteMessage"
	TypeMessageDelivered   PayloadType = "MessageDelivered"
	TypeMessageFailed      PayloadType = "MessageFailed"
	TypeBranchStatus       PayloadType = "BranchStatus"
	TypeSystemNotification PayloadType = "SystemNotification"
	TypeError              PayloadType = "Error"
)

// Message is the envelope wrapping every frame exchanged over /ws.
// Id is globally unique; receivers may dedupe on it. To = nil means
// broadcast within the sender's tenant.
type Message struct {
	Id        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	From      types.BranchId `json:"from"`
	To        *types.BranchId `json:"to,omitempty"`
	Payload   Payload     `json:"payload"`
}

// Payload is a closed discriminated union: Type selects the variant and
// Data holds its body struct by value (nil for Heartbeat/HeartbeatAck).
type Payload struct {
	Type PayloadType `json:"type"`
	Data interface{} `json:"data"`
}

// NewMessage builds an envelope with a fresh id and current timestamp.
func NewMessage(from types.BranchId, to *types.BranchId, payload Payload) Message {
	return Message{
		Id:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		From:      from,
		To:        to,
		Payload:   payload,
	}
}

// --- Payload bodies ---

type ConnectRequest struct {
	TenantId     types.TenantId    `json:"tenant_id"`
	BranchId     types.BranchId    `json:"branch_id"`
	ApiKey       string            `json:"api_key"`
	Version      string            `json:"version"`
	Capabilities []string          `json:"capabilities"`
	Metadata     map[string]string `json:"metadata"`
}

type ConnectAck struct {
	SessionId             string            `json:"session_id"`
	ServerVersion         string            `json:"server_version"`
	HeartbeatIntervalSecs uint64            `json:"heartbeat_interval_secs"`
	AssignedConfig        map[string]string `json:"assigned_config"`
}

type DisconnectReason struct {
	Code   uint16 `json:"code"`
	Reason string `json:"reason"`
}

type SyncRequest struct {
	TransactionId      string                 `json:"transaction_id"`
	LastSyncTimestamp  *time.Time             `json:"last_sync_timestamp,omitempty"`
	VectorClock        map[string]uint64      `json:"vector_clock"`
	Tables             []string               `json:"tables"`
}

type SyncBatch struct {
	TransactionId string                   `json:"transaction_id"`
	VectorClock   map[string]uint64        `json:"vector_clock"`
	Changes       []types.DatabaseChange   `json:"changes"`
	IsFinal       bool                     `json:"is_final"`
}

type FailedChange struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type SyncAck struct {
	TransactionId  string         `json:"transaction_id"`
	AppliedChanges int            `json:"applied_changes"`
	FailedChanges  []FailedChange `json:"failed_changes"`
}

type SyncComplete struct {
	TransactionId string `json:"transaction_id"`
	TotalChanges  int    `json:"total_changes"`
	DurationMs    uint64 `json:"duration_ms"`
}

// ConflictStrategy names a resolution strategy for ConflictNotification.
type ConflictStrategy string

const (
	StrategyLastWriteWins   ConflictStrategy = "last_write_wins"
	StrategyFirstWriteWins  ConflictStrategy = "first_write_wins"
	StrategyManualResolution ConflictStrategy = "manual_resolution"
	StrategyMergeFields     ConflictStrategy = "merge_fields"
)

type ConflictNotification struct {
	ConflictId   string                 `json:"conflict_id"`
	TableName    string                 `json:"table_name"`
	PrimaryKey   interface{}            `json:"primary_key"`
	LocalChange  types.DatabaseChange   `json:"local_change"`
	RemoteChange types.DatabaseChange   `json:"remote_change"`
	Strategy     ConflictStrategy       `json:"strategy"`
}

// ConflictResolutionType tags which side won a resolved conflict.
type ConflictResolutionType string

const (
	ResolutionLocalWins  ConflictResolutionType = "local_wins"
	ResolutionRemoteWins ConflictResolutionType = "remote_wins"
	ResolutionMerged     ConflictResolutionType = "merged"
	ResolutionManual     ConflictResolutionType = "manual"
)

type ConflictResolution struct {
	ConflictId    string                 `json:"conflict_id"`
	Resolution    ConflictResolutionType `json:"resolution"`
	WinningChange types.DatabaseChange   `json:"winning_change"`
}

type ColumnSchema struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type TableSchema struct {
	Name    string         `json:"name"`
	Version uint32         `json:"version"`
	Columns []ColumnSchema `json:"columns"`
}

type SchemaVersionInfo struct {
	Version  uint32        `json:"version"`
	Checksum string        `json:"checksum"`
	Tables   []TableSchema `json:"tables"`
}

type SchemaUpdate struct {
	OldVersion   uint32 `json:"old_version"`
	NewVersion   uint32 `json:"new_version"`
	MigrationSQL string `json:"migration_sql"`
}

type RouteMessage struct {
	TargetBranch types.BranchId `json:"target_branch"`
	Payload      []byte         `json:"payload"`
}

type MessageDelivered struct {
	MessageId   string    `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type MessageFailed struct {
	MessageId string `json:"message_id"`
	Reason    string `json:"reason"`
}

type BranchStatusUpdate struct {
	Status   types.BranchStatus `json:"status"`
	Message  *string            `json:"message,omitempty"`
	Metadata map[string]string  `json:"metadata"`
}

type NotificationLevel string

const (
	LevelInfo     NotificationLevel = "info"
	LevelWarning  NotificationLevel = "warning"
	LevelError    NotificationLevel = "error"
	LevelCritical NotificationLevel = "critical"
)

type SystemNotification struct {
	Level          NotificationLevel `json:"level"`
	Message        string            `json:"message"`
	ActionRequired bool              `json:"action_required"`
}

type ErrorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
