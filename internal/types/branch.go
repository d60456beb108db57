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

// BranchStatus is the lifecycle state of a branch's connection to the hub.
type BranchStatus string

const (
	BranchOnline  BranchStatus = "online"
	BranchOffline BranchStatus = "offline"
	BranchSyncing BranchStatus = "syncing"
	BranchError   BranchStatus = "error"
)

// Branch is a catalog record for one branch location of a tenant.
//
// Invariant: Branch.TenantId must equal the tenant under whose namespace
// it was looked up; the storage gateway enforces this on every read so a
// cross-tenant probe is indistinguishable from a non-existent branch.
type Branch struct {
	Id          BranchId
	TenantId    TenantId
	Name        string
	Status      BranchStatus
	ApiKeyHash  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
