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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erigontech/syncfabric/internal/types"
)

// PostgresGateway is the Gateway backed by the hub's own control-plane
// database (distinct from each branch's local database, which the CDC
// engine instruments separately). Every query that takes a tenant id
// includes it in the WHERE clause rather than filtering results after
// the fact, so a mismatched tenant/branch pair never reaches the
// caller as anything but ErrNotFound.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

func (g *PostgresGateway) GetTenant(ctx context.Context, id types.TenantId) (types.Tenant, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT id, name, company_name, contact_email, status, max_branches,
		       max_connections_per_branch, rate_limit_per_sec, database_schema,
		       conflict_strategy, created_at, updated_at
		FROM tenants WHERE id = $1`, id)

	var t types.Tenant
	var status, strategy string
	if err := row.Scan(&t.Id, &t.Name, &t.CompanyName, &t.ContactEmail, &status, &t.MaxBranches,
		&t.MaxConnectionsPerBranch, &t.RateLimitPerSec, &t.DatabaseSchema,
		&strategy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Tenant{}, types.ErrNotFound
		}
		return types.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	t.Status = types.TenantStatus(status)
	t.ConflictStrategy = strategy
	return t, nil
}

func (g *PostgresGateway) GetBranch(ctx context.Context, tenant types.TenantId, branch types.BranchId) (types.Branch, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, status, api_key_hash, created_at, updated_at
		FROM branches WHERE tenant_id = $1 AND id = $2`, tenant, branch)

	var b types.Branch
	var status string
	if err := row.Scan(&b.Id, &b.TenantId, &b.Name, &status, &b.ApiKeyHash, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Branch{}, types.ErrNotFound
		}
		return types.Branch{}, fmt.Errorf("get branch: %w", err)
	}
	b.Status = types.BranchStatus(status)
	return b, nil
}

// GetTenantForBranch resolves ownership without requiring the caller
// to already know the tenant — used by the router to confirm that a
// directed message's target belongs to the sender's tenant.
func (g *PostgresGateway) GetTenantForBranch(ctx context.Context, branch types.BranchId) (types.TenantId, error) {
	row := g.pool.QueryRow(ctx, `SELECT tenant_id FROM branches WHERE id = $1`, branch)
	var tenant types.TenantId
	if err := row.Scan(&tenant); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.ErrNotFound
		}
		return "", fmt.Errorf("get tenant for branch: %w", err)
	}
	return tenant, nil
}

func (g *PostgresGateway) ListBranchesForTenant(ctx context.Context, tenant types.TenantId) ([]types.Branch, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, tenant_id, name, status, api_key_hash, created_at, updated_at
		FROM branches WHERE tenant_id = $1 AND status = 'online' ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var out []types.Branch
	for rows.Next() {
		var b types.Branch
		var status string
		if err := rows.Scan(&b.Id, &b.TenantId, &b.Name, &status, &b.ApiKeyHash, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan branch row: %w", err)
		}
		b.Status = types.BranchStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (g *PostgresGateway) CreateTenant(ctx context.Context, t types.Tenant) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, company_name, contact_email, status, max_branches,
		                     max_connections_per_branch, rate_limit_per_sec, database_schema,
		                     conflict_strategy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.Id, t.Name, t.CompanyName, t.ContactEmail, string(t.Status), t.MaxBranches,
		t.MaxConnectionsPerBranch, t.RateLimitPerSec, t.DatabaseSchema,
		t.ConflictStrategy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (g *PostgresGateway) CreateBranch(ctx context.Context, b types.Branch) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO branches (id, tenant_id, name, status, api_key_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.Id, b.TenantId, b.Name, string(b.Status), b.ApiKeyHash, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

func (g *PostgresGateway) UpdateBranchStatus(ctx context.Context, tenant types.TenantId, branch types.BranchId, status types.BranchStatus) error {
	tag, err := g.pool.Exec(ctx, `
		UPDATE branches SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3`, string(status), tenant, branch)
	if err != nil {
		return fmt.Errorf("update branch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}
