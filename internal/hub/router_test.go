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

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
)

func testCtx() context.Context {
	return context.Background()
}

func TestForwardToBranchErrorsWhenOfflineAndNoQueue(t *testing.T) {
	registry := NewRegistry(10)
	gw := newFakeGateway()
	gw.branches[qualifiedTestKey{"t1", "b-missing"}] = types.Branch{Id: "b-missing", TenantId: "t1"}
	router := NewRouter(registry, gw, nil, NewMetrics())

	err := router.ForwardToBranch(testCtx(), "t1", "b-missing", protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))
	require.ErrorIs(t, err, types.ErrRouting)
}

func TestForwardToBranchRejectsCrossTenantTarget(t *testing.T) {
	registry := NewRegistry(10)
	gw := newFakeGateway()
	gw.branches[qualifiedTestKey{"t2", "shared-id"}] = types.Branch{Id: "shared-id", TenantId: "t2"}
	metrics := NewMetrics()
	router := NewRouter(registry, gw, nil, metrics)

	target := &Session{Id: "s1", Tenant: "t2", Branch: "shared-id", outbox: make(chan protocol.Message, 1)}
	_, err := registry.Admit(testKey("t2", "shared-id"), target)
	require.NoError(t, err)

	err = router.ForwardToBranch(testCtx(), "t1", "shared-id", protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))
	require.ErrorIs(t, err, types.ErrAuthorizationFail)
	require.Empty(t, target.outbox)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.RoutingErrors.WithLabelValues(RoutingErrorCrossTenant)))
}

func TestBroadcastToTenantExcludesSender(t *testing.T) {
	registry := NewRegistry(10)
	router := NewRouter(registry, nil, nil, NewMetrics())

	a := &Session{Id: "a", Tenant: "t1", Branch: "b1", outbox: make(chan protocol.Message, 1), ctx: testCtx()}
	b := &Session{Id: "b", Tenant: "t1", Branch: "b2", outbox: make(chan protocol.Message, 1), ctx: testCtx()}
	_, _ = registry.Admit(testKey("t1", "b1"), a)
	_, _ = registry.Admit(testKey("t1", "b2"), b)

	sent := router.BroadcastToTenant("t1", "b1", protocol.NewMessage("b1", nil, protocol.Payload{Type: protocol.TypeHeartbeat}))
	require.Equal(t, 1, sent)

	select {
	case <-b.outbox:
	default:
		t.Fatal("expected b's outbox to receive the broadcast")
	}
	require.Empty(t, a.outbox)
}
