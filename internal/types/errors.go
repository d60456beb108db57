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

import "errors"

// Sentinel errors shared across the fabric. Callers wrap these with
// fmt.Errorf("%w: ...") and match with errors.Is; there is no custom
// error framework beyond that.
var (
	ErrNotFound           = errors.New("not found")
	ErrAuthenticationFail = errors.New("authentication failed")
	ErrAuthorizationFail  = errors.New("authorization failed")
	ErrInvalidBranchId    = errors.New("invalid branch id")
	ErrConnectionClosed   = errors.New("connection error")
	ErrSerialization      = errors.New("serialization error")
	ErrRouting            = errors.New("message routing error")
	ErrSyncConflict       = errors.New("sync conflict detected")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)
