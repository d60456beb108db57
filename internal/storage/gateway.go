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

// Package storage is the tenant/branch catalog: the single place that
// knows which branches belong to which tenant, and the only place
// allowed to answer that question for the router's tenant firewall.
package storage

import (
	"context"

	"github.com/erigontech/syncfabric/internal/types"
)

// Gateway is the catalog contract. Every lookup is implicitly scoped:
// a branch that exists but belongs to a different tenant than asked
// must come back as ErrNotFound, identical to a branch that does not
// exist at all — the caller must never be able to distinguish the two.
type Gateway interface {
	GetTenant(ctx context.Context, id types.TenantId) (types.Tenant, error)
	GetBranch(ctx context.Context, tenant types.TenantId, branch types.BranchId) (types.Branch, error)
	GetTenantForBranch(ctx context.Context, branch types.BranchId) (types.TenantId, error)
	ListBranchesForTenant(ctx context.Context, tenant types.TenantId) ([]types.Branch, error)
	CreateTenant(ctx context.Context, t types.Tenant) error
	CreateBranch(ctx context.Context, b types.Branch) error
	UpdateBranchStatus(ctx context.Context, tenant types.TenantId, branch types.BranchId, status types.BranchStatus) error
}

// GetApiKeyHash returns the stored api_key hash for a tenant's branch,
// with the same tenant scoping as GetBranch.
func GetApiKeyHash(ctx context.Context, g Gateway, tenant types.TenantId, branch types.BranchId) (string, error) {
	b, err := g.GetBranch(ctx, tenant, branch)
	if err != nil {
		return "", err
	}
	return b.ApiKeyHash, nil
}
