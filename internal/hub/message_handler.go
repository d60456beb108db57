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
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erigontech/syncfabric/internal/conflict"
	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
	"github.com/erigontech/syncfabric/internal/vectorclock"
)

// MessageHandler processes every frame received on one session after
// its handshake has completed.
type MessageHandler struct {
	hub      *Hub
	session  *Session
	resolver *conflict.Resolver
}

func NewMessageHandler(hub *Hub, session *Session, resolver *conflict.Resolver) *MessageHandler {
	return &MessageHandler{hub: hub, session: session, resolver: resolver}
}

// Handle dispatches one inbound frame. The checks ahead of the type
// switch apply to every frame uniformly: the `from` must match the
// authenticated session, and the sender must be within its message
// rate. The type switch only decides what processing happens before
// the routing decision — the routing decision itself (directed frames
// tenant-checked and forwarded, undirected frames fanned out to the
// sender's tenant) is the same for every payload type and lives in
// route.
func (h *MessageHandler) Handle(m protocol.Message) {
	h.hub.metrics.MessagesReceived.WithLabelValues(string(m.Payload.Type)).Inc()

	if m.From != h.session.Branch {
		h.hub.metrics.RoutingErrors.WithLabelValues(RoutingErrorSpoofedFrom).Inc()
		h.session.Send(protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
			Type: protocol.TypeError,
			Data: protocol.ErrorPayload{Code: "AuthorizationFailed", Message: "from does not match the authenticated session"},
		}))
		return
	}

	if !h.session.AllowMessage() {
		h.session.Send(protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
			Type: protocol.TypeError,
			Data: protocol.ErrorPayload{Code: "RateLimitExceeded", Message: types.ErrRateLimitExceeded.Error()},
		}))
		return
	}

	switch m.Payload.Type {
	case protocol.TypeHeartbeat:
		h.handleHeartbeat(m)
	case protocol.TypeSyncBatch:
		h.handleSyncBatch(m)
	case protocol.TypeRouteMessage:
		h.handleRouteMessage(m)
	case protocol.TypeDisconnect:
		h.session.Close(1000, "client requested disconnect")
	default:
		// Everything else needs no hub-side processing: SyncRequest
		// fans out so each peer can answer from its own CDC log, and
		// acknowledgements, conflict resolutions, status and error
		// payloads travel to whoever they address.
		h.route(m)
	}
}

// route applies the one routing decision every inbound frame gets: a
// directed frame goes to its named target once the target's tenant is
// confirmed to equal the sender's (queued if the target is offline),
// an undirected frame fans out to the sender's tenant. A cross-tenant
// target is answered with an AuthorizationFailed error; any other
// delivery failure is answered with MessageFailed.
func (h *MessageHandler) route(m protocol.Message) {
	if m.To == nil {
		sent := h.hub.router.BroadcastToTenant(h.session.Tenant, h.session.Branch, m)
		h.hub.metrics.MessagesSent.WithLabelValues(string(m.Payload.Type)).Add(float64(sent))
		return
	}
	if err := h.hub.router.ForwardToBranch(h.session.ctx, h.session.Tenant, *m.To, m); err != nil {
		h.replyRouteError(m, err)
		return
	}
	h.hub.metrics.MessagesSent.WithLabelValues(string(m.Payload.Type)).Inc()
}

// replyRouteError translates a routing failure into the reply the
// sender sees: cross-tenant refusals become AuthorizationFailed
// errors, everything else becomes MessageFailed.
func (h *MessageHandler) replyRouteError(m protocol.Message, err error) {
	if errors.Is(err, types.ErrAuthorizationFail) {
		h.hub.log.Errorw("cross-tenant route refused", "from", m.From, "to", *m.To, "session", h.session.Id)
		h.session.Send(protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
			Type: protocol.TypeError,
			Data: protocol.ErrorPayload{Code: "AuthorizationFailed", Message: "target branch is not in your tenant"},
		}))
		return
	}
	h.hub.log.Warnw("routing failed", "type", m.Payload.Type, "target", *m.To, "error", err)
	h.session.Send(protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
		Type: protocol.TypeMessageFailed,
		Data: protocol.MessageFailed{MessageId: m.Id, Reason: err.Error()},
	}))
}

// handleHeartbeat answers a heartbeat addressed to the hub itself. A
// heartbeat carrying a `to` is peer-to-peer liveness traffic and is
// routed like any other directed frame.
func (h *MessageHandler) handleHeartbeat(m protocol.Message) {
	if m.To != nil {
		h.route(m)
		return
	}
	h.session.Touch()
	ack := protocol.NewMessage(h.session.Branch, nil, protocol.Payload{Type: protocol.TypeHeartbeatAck})
	h.session.Send(ack)
	h.hub.metrics.MessagesSent.WithLabelValues(string(protocol.TypeHeartbeatAck)).Inc()
}

// handleSyncBatch runs each change through the hub's conflict
// detector before forwarding. A concurrent write from two branches to
// the same row is resolved here, once, so every branch converges on
// the same winner instead of each computing its own. Routing follows
// the envelope's `to` like any other message: a batch addressed to
// one branch is forwarded there, queued if that branch is offline,
// rather than broadcast to everyone online.
func (h *MessageHandler) handleSyncBatch(m protocol.Message) {
	batch, ok := m.Payload.Data.(protocol.SyncBatch)
	if !ok {
		h.hub.log.Warnw("malformed SyncBatch payload", "session", h.session.Id)
		return
	}
	h.hub.metrics.SyncBatchSize.Observe(float64(len(batch.Changes)))
	start := time.Now()

	clock := vectorclock.Clock(batch.VectorClock)
	outgoing := batch

	for i, change := range batch.Changes {
		conflicted, prior := h.hub.conflicts.Observe(h.session.Tenant, change, clock, h.session.Branch)
		if !conflicted {
			continue
		}

		h.hub.metrics.ConflictsDetected.Inc()
		winner, resolution, err := h.resolver.ResolveWithOrigin(prior.change, change, prior.origin, h.session.Branch)
		if err != nil {
			h.notifyManualConflict(change, prior)
			continue
		}

		h.hub.metrics.ConflictsResolved.WithLabelValues(string(resolution)).Inc()
		outgoing.Changes[i] = winner
		h.hub.conflicts.Commit(h.session.Tenant, winner, clock, h.session.Branch)
	}

	h.route(protocol.NewMessage(h.session.Branch, m.To, protocol.Payload{Type: protocol.TypeSyncBatch, Data: outgoing}))

	ack := protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
		Type: protocol.TypeSyncAck,
		Data: protocol.SyncAck{TransactionId: batch.TransactionId, AppliedChanges: len(outgoing.Changes)},
	})
	h.session.Send(ack)

	if batch.IsFinal {
		complete := protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
			Type: protocol.TypeSyncComplete,
			Data: protocol.SyncComplete{
				TransactionId: batch.TransactionId,
				TotalChanges:  len(outgoing.Changes),
				DurationMs:    uint64(time.Since(start).Milliseconds()),
			},
		})
		h.session.Send(complete)
		h.hub.metrics.SyncDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

func (h *MessageHandler) notifyManualConflict(change types.DatabaseChange, prior lastSeen) {
	notice := protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
		Type: protocol.TypeConflictDetected,
		Data: protocol.ConflictNotification{
			ConflictId:   uuid.NewString(),
			TableName:    change.TableName,
			PrimaryKey:   string(change.PrimaryKey),
			LocalChange:  prior.change,
			RemoteChange: change,
			Strategy:     protocol.ConflictStrategy(h.session.Strategy),
		},
	})
	h.session.Send(notice)
}

// handleRouteMessage forwards an opaque application payload to one
// named branch within the sender's own tenant, confirming delivery to
// the sender with MessageDelivered.
func (h *MessageHandler) handleRouteMessage(m protocol.Message) {
	route, ok := m.Payload.Data.(protocol.RouteMessage)
	if !ok {
		return
	}
	forward := protocol.NewMessage(h.session.Branch, &route.TargetBranch, m.Payload)
	if err := h.hub.router.ForwardToBranch(h.session.ctx, h.session.Tenant, route.TargetBranch, forward); err != nil {
		failed := m
		failed.To = &route.TargetBranch
		h.replyRouteError(failed, err)
		return
	}
	delivered := protocol.NewMessage(h.session.Branch, nil, protocol.Payload{
		Type: protocol.TypeMessageDelivered,
		Data: protocol.MessageDelivered{MessageId: m.Id, DeliveredAt: time.Now().UTC()},
	})
	h.session.Send(delivered)
}
