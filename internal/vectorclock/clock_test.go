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

package vectorclock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHappensBefore(t *testing.T) {
	c1 := New()
	c1.Increment("branch_a")

	c2 := c1.Clone()
	c2.Increment("branch_b")

	require.True(t, c1.HappensBefore(c2))
	require.False(t, c2.HappensBefore(c1))
}

func TestConcurrent(t *testing.T) {
	c1 := New()
	c1.Increment("branch_a")

	c2 := New()
	c2.Increment("branch_b")

	require.True(t, c1.ConcurrentWith(c2))
	require.True(t, c2.ConcurrentWith(c1))
	require.False(t, c1.HappensBefore(c2))
	require.False(t, c2.HappensBefore(c1))
}

func TestMergeIsPointwiseMax(t *testing.T) {
	c1 := Clock{"b1": 3, "b2": 1}
	c2 := Clock{"b1": 1, "b2": 5, "b3": 2}

	c1.Merge(c2)

	require.Equal(t, uint64(3), c1["b1"])
	require.Equal(t, uint64(5), c1["b2"])
	require.Equal(t, uint64(2), c1["b3"])
}

func TestMissingCoordinateIsZero(t *testing.T) {
	c := New()
	require.Equal(t, uint64(0), c["never_seen"])
}

func TestEqualClocksAreNeitherHappensBeforeNorConcurrent(t *testing.T) {
	c1 := Clock{"b1": 2}
	c2 := Clock{"b1": 2}

	require.True(t, c1.Equal(c2))
	require.False(t, c1.HappensBefore(c2))
	require.False(t, c1.ConcurrentWith(c2))
}

func TestCloneDoesNotAlias(t *testing.T) {
	c1 := Clock{"b1": 1}
	c2 := c1.Clone()
	c2.Increment("b1")

	require.Equal(t, uint64(1), c1["b1"])
	require.Equal(t, uint64(2), c2["b1"])
}
