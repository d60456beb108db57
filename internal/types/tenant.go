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

package types

import "time"

// TenantStatus is the lifecycle state of a tenant. Only Active tenants
// may authenticate branches.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantInactive  TenantStatus = "inactive"
	TenantTrial     TenantStatus = "trial"
)

// Tenant is the customer-level isolation boundary.
type Tenant struct {
	Id                      TenantId
	Name                    string
	CompanyName             string
	ContactEmail            string
	Status                  TenantStatus
	MaxBranches             int
	MaxConnectionsPerBranch int
	RateLimitPerSec         int
	DatabaseSchema          string
	ConflictStrategy        string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsActive reports whether the tenant may authenticate branches.
func (t Tenant) IsActive() bool {
	return t.Status == TenantActive
}
