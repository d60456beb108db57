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

package protocol

import (
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"

	"github.com/erigontech/syncfabric/internal/types"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// newPayloadBody returns a pointer to the zero value of the Go type
// backing a given payload variant, so Data can be unmarshaled into a
// concrete type rather than a generic map. An unrecognized PayloadType
// is the codec's InvalidMessage case — callers must fail decode, never
// silently drop the frame.
func newPayloadBody(t PayloadType) (interface{}, error) {
	switch t {
	case TypeConnect:
		return &ConnectRequest{}, nil
	case TypeConnectAck:
		return &ConnectAck{}, nil
	case TypeDisconnect:
		return &DisconnectReason{}, nil
	case TypeHeartbeat, TypeHeartbeatAck:
		return &struct{}{}, nil
	case TypeSyncRequest:
		return &SyncRequest{}, nil
	case TypeSyncBatch:
		return &SyncBatch{}, nil
	case TypeSyncAck:
		return &SyncAck{}, nil
	case TypeSyncComplete:
		return &SyncComplete{}, nil
	case TypeConflictDetected:
		return &ConflictNotification{}, nil
	case TypeConflictResolved:
		return &ConflictResolution{}, nil
	case TypeSchemaVersion:
		return &SchemaVersionInfo{}, nil
	case TypeSchemaUpdate:
		return &SchemaUpdate{}, nil
	case TypeRouteMessage:
		return &RouteMessage{}, nil
	case TypeMessageDelivered:
		return &MessageDelivered{}, nil
	case TypeMessageFailed:
		return &MessageFailed{}, nil
	case TypeBranchStatus:
		return &BranchStatusUpdate{}, nil
	case TypeSystemNotification:
		return &SystemNotification{}, nil
	case TypeError:
		return &ErrorPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", types.ErrInvalidMessage, t)
	}
}

// MarshalJSON renders the payload as {"type": "...", "data": ...}.
func (p Payload) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type PayloadType `json:"type"`
		Data interface{} `json:"data"`
	}
	return jsonAPI.Marshal(wire{Type: p.Type, Data: p.Data})
}

// UnmarshalJSON parses {"type": "...", "data": ...}, dispatching Data
// into the concrete struct for Type. Unknown types fail with
// ErrInvalidMessage rather than silently decoding into a generic map.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var probe struct {
		Type PayloadType      `json:"type"`
		Data jsoniter.RawMessage `json:"data"`
	}
	if err := jsonAPI.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}

	body, err := newPayloadBody(probe.Type)
	if err != nil {
		return err
	}
	if len(probe.Data) > 0 {
		if err := jsonAPI.Unmarshal(probe.Data, body); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
		}
	}

	p.Type = probe.Type
	// Heartbeat/HeartbeatAck carry no body; keep Data nil for them.
	// Everything else is stored dereferenced (a value, not a pointer)
	// so callers can construct and compare payloads uniformly.
	if probe.Type == TypeHeartbeat || probe.Type == TypeHeartbeatAck {
		p.Data = nil
	} else {
		p.Data = reflect.ValueOf(body).Elem().Interface()
	}
	return nil
}
