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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyApiKeyRoundTrip(t *testing.T) {
	encoded, err := HashApiKey("sk_live_abc123")
	require.NoError(t, err)

	ok, err := VerifyApiKey("sk_live_abc123", encoded)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyApiKeyRejectsWrongKey(t *testing.T) {
	encoded, err := HashApiKey("sk_live_abc123")
	require.NoError(t, err)

	ok, err := VerifyApiKey("sk_live_wrong", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashApiKeyProducesDistinctSalts(t *testing.T) {
	a, err := HashApiKey("same-key")
	require.NoError(t, err)
	b, err := HashApiKey("same-key")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two hashes of the same key must use independent salts")
}

func TestVerifyApiKeyRejectsMalformedEncoding(t *testing.T) {
	_, err := VerifyApiKey("key", "not-a-valid-hash")
	require.Error(t, err)
}
