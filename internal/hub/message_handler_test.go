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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/conflict"
	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
)

func newHandlerFixture(t *testing.T, gw *fakeGateway) (*MessageHandler, *Session, *Registry, *Metrics) {
	t.Helper()
	metrics := NewMetrics()
	registry := NewRegistry(16)
	router := NewRouter(registry, gw, nil, metrics)
	h := &Hub{
		router:    router,
		registry:  registry,
		metrics:   metrics,
		log:       zap.NewNop().Sugar(),
		conflicts: NewConflictState(),
	}
	sender := &Session{Id: "sess-b1", Tenant: "t1", Branch: "b1", outbox: make(chan protocol.Message, 16), ctx: context.Background()}
	return NewMessageHandler(h, sender, conflict.NewResolver(conflict.LastWriteWins)), sender, registry, metrics
}

func newPeerSession(tenant, branch string) *Session {
	return &Session{
		Id:     "sess-" + branch,
		Tenant: types.TenantId(tenant),
		Branch: types.BranchId(branch),
		outbox: make(chan protocol.Message, 16),
		ctx:    context.Background(),
	}
}

func takeOutbox(t *testing.T, s *Session) protocol.Message {
	t.Helper()
	select {
	case m := <-s.outbox:
		return m
	default:
		t.Fatal("expected a message in the outbox")
		return protocol.Message{}
	}
}

func TestHandleCrossTenantDirectedHeartbeatIsRefused(t *testing.T) {
	gw := newFakeGateway()
	gw.branches[qualifiedTestKey{"t1", "b1"}] = types.Branch{Id: "b1", TenantId: "t1"}
	gw.branches[qualifiedTestKey{"t2", "b2"}] = types.Branch{Id: "b2", TenantId: "t2"}
	handler, sender, registry, metrics := newHandlerFixture(t, gw)

	target := newPeerSession("t2", "b2")
	_, err := registry.Admit(testKey("t2", "b2"), target)
	require.NoError(t, err)

	to := types.BranchId("b2")
	handler.Handle(protocol.NewMessage("b1", &to, protocol.Payload{Type: protocol.TypeHeartbeat}))

	reply := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeError, reply.Payload.Type)
	errPayload, ok := reply.Payload.Data.(protocol.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "AuthorizationFailed", errPayload.Code)

	require.Empty(t, target.outbox, "the cross-tenant target must receive nothing")
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.RoutingErrors.WithLabelValues(RoutingErrorCrossTenant)))
}

func TestHandleDirectedHeartbeatReachesSameTenantPeer(t *testing.T) {
	gw := newFakeGateway()
	gw.branches[qualifiedTestKey{"t1", "b2"}] = types.Branch{Id: "b2", TenantId: "t1"}
	handler, sender, registry, _ := newHandlerFixture(t, gw)

	target := newPeerSession("t1", "b2")
	_, err := registry.Admit(testKey("t1", "b2"), target)
	require.NoError(t, err)

	to := types.BranchId("b2")
	handler.Handle(protocol.NewMessage("b1", &to, protocol.Payload{Type: protocol.TypeHeartbeat}))

	forwarded := takeOutbox(t, target)
	require.Equal(t, protocol.TypeHeartbeat, forwarded.Payload.Type)
	require.Empty(t, sender.outbox, "a routed heartbeat is not acked by the hub")
}

func TestHandleHeartbeatAnswersWithAck(t *testing.T) {
	handler, sender, _, _ := newHandlerFixture(t, newFakeGateway())

	handler.Handle(protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))

	ack := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeHeartbeatAck, ack.Payload.Type)
}

func TestHandleRejectsSpoofedFrom(t *testing.T) {
	handler, sender, _, metrics := newHandlerFixture(t, newFakeGateway())

	handler.Handle(protocol.NewMessage("b9", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))

	reply := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeError, reply.Payload.Type)
	errPayload, ok := reply.Payload.Data.(protocol.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "AuthorizationFailed", errPayload.Code)
	require.Empty(t, sender.outbox, "a spoofed frame must not also be processed")
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.RoutingErrors.WithLabelValues(RoutingErrorSpoofedFrom)))
}

func TestHandleSyncRequestFansOutWithinTenant(t *testing.T) {
	handler, sender, registry, _ := newHandlerFixture(t, newFakeGateway())

	peer := newPeerSession("t1", "b2")
	outsider := newPeerSession("t2", "b3")
	_, _ = registry.Admit(testKey("t1", "b2"), peer)
	_, _ = registry.Admit(testKey("t2", "b3"), outsider)

	handler.Handle(protocol.NewMessage("b1", nil, protocol.Payload{
		Type: protocol.TypeSyncRequest,
		Data: protocol.SyncRequest{TransactionId: "tx-1", VectorClock: map[string]uint64{"b1": 1}},
	}))

	forwarded := takeOutbox(t, peer)
	require.Equal(t, protocol.TypeSyncRequest, forwarded.Payload.Type)
	require.Empty(t, outsider.outbox, "a broadcast must stay inside the sender's tenant")
	require.Empty(t, sender.outbox, "a broadcast is not echoed to the sender")
}

func TestHandleRateLimitedSessionGetsError(t *testing.T) {
	handler, sender, _, _ := newHandlerFixture(t, newFakeGateway())
	sender.SetRateLimit(1)

	handler.Handle(protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))
	ack := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeHeartbeatAck, ack.Payload.Type)

	handler.Handle(protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))
	reply := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeError, reply.Payload.Type)
	errPayload, ok := reply.Payload.Data.(protocol.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "RateLimitExceeded", errPayload.Code)
}

func TestHandleDirectedSyncBatchToOfflinePeerReportsFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.branches[qualifiedTestKey{"t1", "b2"}] = types.Branch{Id: "b2", TenantId: "t1"}
	handler, sender, _, _ := newHandlerFixture(t, gw)

	to := types.BranchId("b2")
	handler.Handle(protocol.NewMessage("b1", &to, protocol.Payload{
		Type: protocol.TypeSyncBatch,
		Data: protocol.SyncBatch{
			TransactionId: "tx-42",
			VectorClock:   map[string]uint64{"b1": 1},
			Changes:       []types.DatabaseChange{{TableName: "orders", Operation: types.OpInsert}},
			IsFinal:       true,
		},
	}))

	// No offline queue is configured in this fixture, so the directed
	// forward fails and the sender hears about it before the batch ack.
	failed := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeMessageFailed, failed.Payload.Type)

	ack := takeOutbox(t, sender)
	require.Equal(t, protocol.TypeSyncAck, ack.Payload.Type)
}
