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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/storage"
	"github.com/erigontech/syncfabric/internal/types"
)

type fakeGateway struct {
	tenants  map[types.TenantId]types.Tenant
	branches map[qualifiedTestKey]types.Branch
}

type qualifiedTestKey struct {
	tenant types.TenantId
	branch types.BranchId
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{tenants: map[types.TenantId]types.Tenant{}, branches: map[qualifiedTestKey]types.Branch{}}
}

func (f *fakeGateway) GetTenant(ctx context.Context, id types.TenantId) (types.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return types.Tenant{}, types.ErrNotFound
	}
	return t, nil
}

func (f *fakeGateway) GetBranch(ctx context.Context, tenant types.TenantId, branch types.BranchId) (types.Branch, error) {
	b, ok := f.branches[qualifiedTestKey{tenant, branch}]
	if !ok {
		return types.Branch{}, types.ErrNotFound
	}
	return b, nil
}

func (f *fakeGateway) GetTenantForBranch(ctx context.Context, branch types.BranchId) (types.TenantId, error) {
	for key, b := range f.branches {
		if key.branch == branch {
			return b.TenantId, nil
		}
	}
	return "", types.ErrNotFound
}
func (f *fakeGateway) ListBranchesForTenant(ctx context.Context, tenant types.TenantId) ([]types.Branch, error) {
	return nil, nil
}
func (f *fakeGateway) CreateTenant(ctx context.Context, t types.Tenant) error {
	f.tenants[t.Id] = t
	return nil
}
func (f *fakeGateway) CreateBranch(ctx context.Context, b types.Branch) error {
	f.branches[qualifiedTestKey{b.TenantId, b.Id}] = b
	return nil
}
func (f *fakeGateway) UpdateBranchStatus(ctx context.Context, tenant types.TenantId, branch types.BranchId, status types.BranchStatus) error {
	return nil
}

var _ storage.Gateway = (*fakeGateway)(nil)

func setupAuth(t *testing.T) (*Authenticator, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	gw.tenants["t1"] = types.Tenant{Id: "t1", Status: types.TenantActive}
	hash, err := storage.HashApiKey("correct-key")
	require.NoError(t, err)
	gw.branches[qualifiedTestKey{"t1", "b1"}] = types.Branch{Id: "b1", TenantId: "t1", ApiKeyHash: hash}
	return NewAuthenticator(gw, "test-secret", time.Hour, NewMetrics()), gw
}

func TestAuthenticateBranchSucceedsWithCorrectKey(t *testing.T) {
	auth, _ := setupAuth(t)
	branch, err := auth.AuthenticateBranch(context.Background(), protocol.ConnectRequest{TenantId: "t1", BranchId: "b1", ApiKey: "correct-key"})
	require.NoError(t, err)
	require.Equal(t, types.BranchId("b1"), branch.Id)
}

func TestAuthenticateBranchFailsWithWrongKey(t *testing.T) {
	auth, _ := setupAuth(t)
	_, err := auth.AuthenticateBranch(context.Background(), protocol.ConnectRequest{TenantId: "t1", BranchId: "b1", ApiKey: "wrong-key"})
	require.ErrorIs(t, err, types.ErrAuthenticationFail)
}

func TestAuthenticateBranchFailsForInactiveTenant(t *testing.T) {
	auth, gw := setupAuth(t)
	gw.tenants["t1"] = types.Tenant{Id: "t1", Status: types.TenantSuspended}
	_, err := auth.AuthenticateBranch(context.Background(), protocol.ConnectRequest{TenantId: "t1", BranchId: "b1", ApiKey: "correct-key"})
	require.ErrorIs(t, err, types.ErrAuthenticationFail)
}

func TestAuthenticateBranchFailsForUnknownTenant(t *testing.T) {
	auth, _ := setupAuth(t)
	_, err := auth.AuthenticateBranch(context.Background(), protocol.ConnectRequest{TenantId: "nope", BranchId: "b1", ApiKey: "correct-key"})
	require.ErrorIs(t, err, types.ErrAuthenticationFail)
}

func TestIssueAndValidateTokenRoundTrip(t *testing.T) {
	auth, _ := setupAuth(t)
	token, err := auth.IssueToken("t1", "b1")
	require.NoError(t, err)

	tenant, branch, err := auth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, types.TenantId("t1"), tenant)
	require.Equal(t, types.BranchId("b1"), branch)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	auth, _ := setupAuth(t)
	_, _, err := auth.ValidateToken("not-a-jwt")
	require.Error(t, err)
}
