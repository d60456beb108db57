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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/syncfabric/internal/types"
)

func testKey(tenant, branch string) types.QualifiedBranchId {
	return types.QualifiedBranchId{TenantId: types.TenantId(tenant), BranchId: types.BranchId(branch)}
}

func TestRegistryAdmitAndGet(t *testing.T) {
	r := NewRegistry(10)
	s := &Session{Id: "s1", Tenant: "t1", Branch: "b1"}

	prior, err := r.Admit(testKey("t1", "b1"), s)
	require.NoError(t, err)
	require.Nil(t, prior)

	got, ok := r.Get(testKey("t1", "b1"))
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, r.Count())
}

func TestRegistryReconnectEvictsPriorSession(t *testing.T) {
	r := NewRegistry(10)
	first := &Session{Id: "s1", Tenant: "t1", Branch: "b1"}
	second := &Session{Id: "s2", Tenant: "t1", Branch: "b1"}

	_, err := r.Admit(testKey("t1", "b1"), first)
	require.NoError(t, err)

	prior, err := r.Admit(testKey("t1", "b1"), second)
	require.NoError(t, err)
	require.Same(t, first, prior)
	require.Equal(t, 1, r.Count(), "reconnecting must not grow the slot count")

	got, _ := r.Get(testKey("t1", "b1"))
	require.Same(t, second, got)
}

func TestRegistryRejectsOverCapacity(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Admit(testKey("t1", "b1"), &Session{Id: "s1"})
	require.NoError(t, err)

	_, err = r.Admit(testKey("t1", "b2"), &Session{Id: "s2"})
	require.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistryRemoveIgnoresStaleSession(t *testing.T) {
	r := NewRegistry(10)
	first := &Session{Id: "s1", Tenant: "t1", Branch: "b1"}
	second := &Session{Id: "s2", Tenant: "t1", Branch: "b1"}

	_, err := r.Admit(testKey("t1", "b1"), first)
	require.NoError(t, err)
	_, err = r.Admit(testKey("t1", "b1"), second)
	require.NoError(t, err)

	r.Remove(testKey("t1", "b1"), first)

	got, ok := r.Get(testKey("t1", "b1"))
	require.True(t, ok, "removing a superseded session must not evict the current one")
	require.Same(t, second, got)
}

func TestRegistryListTenantOnlyReturnsThatTenant(t *testing.T) {
	r := NewRegistry(10)
	a := &Session{Id: "a", Tenant: "t1", Branch: "b1"}
	b := &Session{Id: "b", Tenant: "t1", Branch: "b2"}
	c := &Session{Id: "c", Tenant: "t2", Branch: "b3"}

	_, _ = r.Admit(testKey("t1", "b1"), a)
	_, _ = r.Admit(testKey("t1", "b2"), b)
	_, _ = r.Admit(testKey("t2", "b3"), c)

	sessions := r.ListTenant("t1")
	require.Len(t, sessions, 2)
}
