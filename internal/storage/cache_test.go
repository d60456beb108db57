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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/syncfabric/internal/types"
)

// countingGateway counts calls so tests can assert the cache actually
// avoids hitting the inner gateway on a hit.
type countingGateway struct {
	tenants     map[types.TenantId]types.Tenant
	branches    map[qualifiedKey]types.Branch
	tenantCalls int
	branchCalls int
}

func newCountingGateway() *countingGateway {
	return &countingGateway{
		tenants:  map[types.TenantId]types.Tenant{},
		branches: map[qualifiedKey]types.Branch{},
	}
}

func (g *countingGateway) GetTenant(ctx context.Context, id types.TenantId) (types.Tenant, error) {
	g.tenantCalls++
	t, ok := g.tenants[id]
	if !ok {
		return types.Tenant{}, types.ErrNotFound
	}
	return t, nil
}

func (g *countingGateway) GetBranch(ctx context.Context, tenant types.TenantId, branch types.BranchId) (types.Branch, error) {
	g.branchCalls++
	b, ok := g.branches[qualifiedKey{tenant, branch}]
	if !ok {
		return types.Branch{}, types.ErrNotFound
	}
	return b, nil
}

func (g *countingGateway) GetTenantForBranch(ctx context.Context, branch types.BranchId) (types.TenantId, error) {
	return "", types.ErrNotFound
}

func (g *countingGateway) ListBranchesForTenant(ctx context.Context, tenant types.TenantId) ([]types.Branch, error) {
	return nil, nil
}

func (g *countingGateway) CreateTenant(ctx context.Context, t types.Tenant) error {
	g.tenants[t.Id] = t
	return nil
}

func (g *countingGateway) CreateBranch(ctx context.Context, b types.Branch) error {
	g.branches[qualifiedKey{b.TenantId, b.Id}] = b
	return nil
}

func (g *countingGateway) UpdateBranchStatus(ctx context.Context, tenant types.TenantId, branch types.BranchId, status types.BranchStatus) error {
	key := qualifiedKey{tenant, branch}
	b := g.branches[key]
	b.Status = status
	g.branches[key] = b
	return nil
}

func TestCachedGatewayServesSecondGetTenantFromCache(t *testing.T) {
	inner := newCountingGateway()
	inner.tenants["t1"] = types.Tenant{Id: "t1", Name: "Acme"}
	cached, err := NewCachedGateway(inner, 16)
	require.NoError(t, err)

	_, err = cached.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	_, err = cached.GetTenant(context.Background(), "t1")
	require.NoError(t, err)

	require.Equal(t, 1, inner.tenantCalls, "second lookup must be served from cache")
}

func TestCachedGatewayInvalidatesBranchOnStatusUpdate(t *testing.T) {
	inner := newCountingGateway()
	inner.branches[qualifiedKey{"t1", "b1"}] = types.Branch{Id: "b1", TenantId: "t1", Status: types.BranchOffline}
	cached, err := NewCachedGateway(inner, 16)
	require.NoError(t, err)

	b, err := cached.GetBranch(context.Background(), "t1", "b1")
	require.NoError(t, err)
	require.Equal(t, types.BranchOffline, b.Status)

	require.NoError(t, cached.UpdateBranchStatus(context.Background(), "t1", "b1", types.BranchOnline))

	b, err = cached.GetBranch(context.Background(), "t1", "b1")
	require.NoError(t, err)
	require.Equal(t, types.BranchOnline, b.Status, "cache must reflect the update, not a stale cached value")
	require.Equal(t, 2, inner.branchCalls, "status update must invalidate the cache entry")
}

func TestGetApiKeyHashIsTenantScoped(t *testing.T) {
	inner := newCountingGateway()
	inner.branches[qualifiedKey{"t1", "b1"}] = types.Branch{Id: "b1", TenantId: "t1", ApiKeyHash: "argon2id$..."}

	hash, err := GetApiKeyHash(context.Background(), inner, "t1", "b1")
	require.NoError(t, err)
	require.Equal(t, "argon2id$...", hash)

	_, err = GetApiKeyHash(context.Background(), inner, "t2", "b1")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestCachedGatewayCrossTenantBranchLookupIsNotFound(t *testing.T) {
	inner := newCountingGateway()
	inner.branches[qualifiedKey{"t1", "b1"}] = types.Branch{Id: "b1", TenantId: "t1"}
	cached, err := NewCachedGateway(inner, 16)
	require.NoError(t, err)

	_, err = cached.GetBranch(context.Background(), "t2", "b1")
	require.ErrorIs(t, err, types.ErrNotFound)
}
