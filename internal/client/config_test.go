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

package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresTenantBranchAndApiKey(t *testing.T) {
	t.Setenv("TENANT_ID", "")
	t.Setenv("BRANCH_ID", "")
	t.Setenv("API_KEY", "")
	t.Setenv("TRACKED_TABLES", "users")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresTrackedTables(t *testing.T) {
	t.Setenv("TENANT_ID", "t1")
	t.Setenv("BRANCH_ID", "b1")
	t.Setenv("API_KEY", "k")
	t.Setenv("TRACKED_TABLES", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigParsesTrackedTables(t *testing.T) {
	t.Setenv("TENANT_ID", "t1")
	t.Setenv("BRANCH_ID", "b1")
	t.Setenv("API_KEY", "k")
	t.Setenv("TRACKED_TABLES", "users, orders,products")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"users", "orders", "products"}, cfg.TrackedTables)
}
