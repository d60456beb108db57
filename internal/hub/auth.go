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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/storage"
	"github.com/erigontech/syncfabric/internal/types"
)

// branchClaims is the JWT payload issued by /auth/token and checked by
// ValidateToken. The WebSocket handshake does not accept these tokens;
// it authenticates with the api_key only.
type branchClaims struct {
	TenantId types.TenantId `json:"tenant_id"`
	BranchId types.BranchId `json:"branch_id"`
	jwt.RegisteredClaims
}

// Authenticator validates a handshake's tenant/branch/api_key triple
// against the catalog, and issues and validates bearer tokens scoped
// to one branch.
type Authenticator struct {
	gateway   storage.Gateway
	jwtSecret []byte
	jwtExpiry time.Duration
	metrics   *Metrics
}

func NewAuthenticator(gateway storage.Gateway, jwtSecret string, jwtExpiry time.Duration, metrics *Metrics) *Authenticator {
	return &Authenticator{gateway: gateway, jwtSecret: []byte(jwtSecret), jwtExpiry: jwtExpiry, metrics: metrics}
}

// AuthenticateBranch enforces the full handshake contract: the tenant
// must exist and be active, the branch must belong to that tenant,
// and the supplied api_key must verify against the branch's stored
// hash. Any failure collapses to ErrAuthenticationFail — the caller
// must not be able to distinguish "wrong tenant" from "wrong key" from
// "branch doesn't exist", which would leak catalog information to an
// unauthenticated client.
func (a *Authenticator) AuthenticateBranch(ctx context.Context, req protocol.ConnectRequest) (types.Branch, error) {
	tenant, err := a.gateway.GetTenant(ctx, req.TenantId)
	if err != nil {
		a.fail()
		return types.Branch{}, types.ErrAuthenticationFail
	}
	if !tenant.IsActive() {
		a.fail()
		return types.Branch{}, types.ErrAuthenticationFail
	}

	branch, err := a.gateway.GetBranch(ctx, req.TenantId, req.BranchId)
	if err != nil {
		a.fail()
		return types.Branch{}, types.ErrAuthenticationFail
	}

	ok, err := storage.VerifyApiKey(req.ApiKey, branch.ApiKeyHash)
	if err != nil || !ok {
		a.fail()
		return types.Branch{}, types.ErrAuthenticationFail
	}

	return branch, nil
}

func (a *Authenticator) fail() {
	if a.metrics != nil {
		a.metrics.AuthFailuresTotal.Inc()
	}
}

// IssueToken mints a bearer JWT scoped to one tenant/branch pair,
// handed out by the /auth/token endpoint in exchange for a valid
// tenant_id/branch_id/api_key. The /ws handshake does not take it in
// place of the api_key.
func (a *Authenticator) IssueToken(tenant types.TenantId, branch types.BranchId) (string, error) {
	now := time.Now()
	claims := branchClaims{
		TenantId: tenant,
		BranchId: branch,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.jwtExpiry)),
			Subject:   string(branch),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token minted by
// IssueToken, returning the tenant/branch it was scoped to.
func (a *Authenticator) ValidateToken(tokenString string) (types.TenantId, types.BranchId, error) {
	claims := &branchClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("%w: %v", types.ErrAuthenticationFail, err)
	}
	return claims.TenantId, claims.BranchId, nil
}
