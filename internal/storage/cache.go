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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/syncfabric/internal/types"
)

// CachedGateway wraps a Gateway with a read-through LRU cache over
// tenant and branch lookups, the two queries the handshake path runs
// on every single connect. Writes invalidate rather than update, so a
// stale read is never staler than the next cache miss.
type CachedGateway struct {
	inner    Gateway
	tenants  *lru.Cache[types.TenantId, types.Tenant]
	branches *lru.Cache[qualifiedKey, types.Branch]
}

type qualifiedKey struct {
	tenant types.TenantId
	branch types.BranchId
}

func NewCachedGateway(inner Gateway, size int) (*CachedGateway, error) {
	tenants, err := lru.New[types.TenantId, types.Tenant](size)
	if err != nil {
		return nil, err
	}
	branches, err := lru.New[qualifiedKey, types.Branch](size)
	if err != nil {
		return nil, err
	}
	return &CachedGateway{inner: inner, tenants: tenants, branches: branches}, nil
}

func (c *CachedGateway) GetTenant(ctx context.Context, id types.TenantId) (types.Tenant, error) {
	if t, ok := c.tenants.Get(id); ok {
		return t, nil
	}
	t, err := c.inner.GetTenant(ctx, id)
	if err != nil {
		return types.Tenant{}, err
	}
	c.tenants.Add(id, t)
	return t, nil
}

func (c *CachedGateway) GetBranch(ctx context.Context, tenant types.TenantId, branch types.BranchId) (types.Branch, error) {
	key := qualifiedKey{tenant, branch}
	if b, ok := c.branches.Get(key); ok {
		return b, nil
	}
	b, err := c.inner.GetBranch(ctx, tenant, branch)
	if err != nil {
		return types.Branch{}, err
	}
	c.branches.Add(key, b)
	return b, nil
}

func (c *CachedGateway) GetTenantForBranch(ctx context.Context, branch types.BranchId) (types.TenantId, error) {
	return c.inner.GetTenantForBranch(ctx, branch)
}

func (c *CachedGateway) ListBranchesForTenant(ctx context.Context, tenant types.TenantId) ([]types.Branch, error) {
	return c.inner.ListBranchesForTenant(ctx, tenant)
}

func (c *CachedGateway) CreateTenant(ctx context.Context, t types.Tenant) error {
	if err := c.inner.CreateTenant(ctx, t); err != nil {
		return err
	}
	c.tenants.Remove(t.Id)
	return nil
}

func (c *CachedGateway) CreateBranch(ctx context.Context, b types.Branch) error {
	if err := c.inner.CreateBranch(ctx, b); err != nil {
		return err
	}
	c.branches.Remove(qualifiedKey{b.TenantId, b.Id})
	return nil
}

func (c *CachedGateway) UpdateBranchStatus(ctx context.Context, tenant types.TenantId, branch types.BranchId, status types.BranchStatus) error {
	if err := c.inner.UpdateBranchStatus(ctx, tenant, branch, status); err != nil {
		return err
	}
	c.branches.Remove(qualifiedKey{tenant, branch})
	return nil
}
