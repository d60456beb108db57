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
	"fmt"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/storage"
	"github.com/erigontech/syncfabric/internal/types"
)

// Router forwards messages between sessions of the same tenant. Every
// directed send resolves the target's real tenant from the catalog
// before anything else happens — the tenant firewall is enforced by
// that lookup, not by the shape of the registry key.
type Router struct {
	registry *Registry
	gateway  storage.Gateway
	offline  *OfflineQueue
	metrics  *Metrics
}

func NewRouter(registry *Registry, gateway storage.Gateway, offline *OfflineQueue, metrics *Metrics) *Router {
	return &Router{registry: registry, gateway: gateway, offline: offline, metrics: metrics}
}

// ForwardToBranch delivers m to target on behalf of a sender
// authenticated under senderTenant. It first resolves target's actual
// tenant via the catalog; a mismatch is a cross-tenant
// routing attempt and is rejected with ErrAuthorizationFail, counted
// under the cross_tenant metric, never silently queued. Only once the
// tenants are confirmed equal is the target looked up in the registry;
// if it is offline, m is queued (subject to the offline queue's TTL)
// rather than dropped.
func (r *Router) ForwardToBranch(ctx context.Context, senderTenant types.TenantId, target types.BranchId, m protocol.Message) error {
	targetTenant, err := r.gateway.GetTenantForBranch(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: resolve tenant for branch %s: %v", types.ErrRouting, target, err)
	}
	if targetTenant != senderTenant {
		r.metrics.RoutingErrors.WithLabelValues(RoutingErrorCrossTenant).Inc()
		return fmt.Errorf("%w: cross-tenant route from tenant %s to branch %s rejected", types.ErrAuthorizationFail, senderTenant, target)
	}

	key := types.QualifiedBranchId{TenantId: targetTenant, BranchId: target}
	session, ok := r.registry.Get(key)
	if !ok {
		if r.offline != nil {
			return r.offline.Enqueue(key, m)
		}
		return fmt.Errorf("%w: branch %s offline with no queue configured", types.ErrRouting, target)
	}
	session.Send(m)
	return nil
}

// BroadcastToTenant sends m to every online branch of tenant other
// than exclude (typically the sender, which never needs its own echo).
func (r *Router) BroadcastToTenant(tenant types.TenantId, exclude types.BranchId, m protocol.Message) int {
	sent := 0
	for _, session := range r.registry.ListTenant(tenant) {
		if session.Branch == exclude {
			continue
		}
		session.Send(m)
		sent++
	}
	return sent
}
