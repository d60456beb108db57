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

// Package vectorclock implements vector clocks for detecting concurrent
// writes across branches of the same tenant.
package vectorclock

// Clock maps a branch identifier to a monotonically increasing counter.
// A missing entry is implicitly 0. Clocks are never backed by fixed-size
// arrays: branches join the fabric dynamically and the key set grows
// over the clock's lifetime.
type Clock map[string]uint64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the receiver.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Increment raises branch's coordinate by one, in place.
func (c Clock) Increment(branch string) {
	c[branch]++
}

// Merge takes the pointwise maximum of c and other, in place on c.
func (c Clock) Merge(other Clock) {
	for branch, v := range other {
		if cur := c[branch]; v > cur {
			c[branch] = v
		}
	}
}

// HappensBefore reports whether c happened-before other: every
// coordinate of c is <= the matching coordinate of other, and at least
// one is strictly less.
func (c Clock) HappensBefore(other Clock) bool {
	lessSomewhere := false
	keys := make(map[string]struct{}, len(c)+len(other))
	for k := range c {
		keys[k] = struct{}{}
	}
	for k := range other {
		keys[k] = struct{}{}
	}
	for k := range keys {
		a, b := c[k], other[k]
		if a > b {
			return false
		}
		if a < b {
			lessSomewhere = true
		}
	}
	return lessSomewhere
}

// ConcurrentWith reports whether neither clock happened-before the other
// and the two are not equal. Equal clocks describe the same causal
// history, so they are never concurrent.
func (c Clock) ConcurrentWith(other Clock) bool {
	return !c.Equal(other) && !c.HappensBefore(other) && !other.HappensBefore(c)
}

// Equal reports whether c and other carry identical coordinates,
// treating an absent key and an explicit 0 as equivalent.
func (c Clock) Equal(other Clock) bool {
	for k, v := range c {
		if other[k] != v {
			return false
		}
	}
	for k, v := range other {
		if c[k] != v {
			return false
		}
	}
	return true
}
