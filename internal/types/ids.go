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

// Package types holds the data model shared by every layer of the sync
// fabric: tenant/branch identifiers and catalog records, and the
// database-change shape produced by change capture and consumed by
// replication.
package types

import "strings"

// TenantId is an opaque, bytewise-compared tenant identifier.
type TenantId string

// BranchId is an opaque, bytewise-compared branch identifier. It is
// unique only within a tenant; the same BranchId string may legitimately
// belong to two different tenants, so every lookup must carry the
// tenant alongside it.
type BranchId string

// QualifiedBranchId is the fully qualified (tenant, branch) pair that
// uniquely addresses a branch across the whole fabric.
type QualifiedBranchId struct {
	TenantId TenantId
	BranchId BranchId
}

// String renders the canonical "tenant:branch" form.
func (q QualifiedBranchId) String() string {
	return string(q.TenantId) + ":" + string(q.BranchId)
}

// ParseQualifiedBranchId parses the canonical "tenant:branch" form
// produced by String. It returns false if s does not contain exactly
// one separating colon.
func ParseQualifiedBranchId(s string) (QualifiedBranchId, bool) {
	tenant, branch, ok := strings.Cut(s, ":")
	if !ok || strings.Contains(branch, ":") {
		return QualifiedBranchId{}, false
	}
	return QualifiedBranchId{TenantId: TenantId(tenant), BranchId: BranchId(branch)}, true
}
