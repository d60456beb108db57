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
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/erigontech/syncfabric/internal/types"
)

const registryShardCount = 32

// Registry is the hub's live connection table: which branch, of which
// tenant, is attached to which *Session right now. It is sharded to
// keep lock contention off the hot connect/disconnect path under many
// concurrent branches.
type Registry struct {
	shards [registryShardCount]registryShard
	count  int64
	mu     sync.Mutex
	max    int
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[types.QualifiedBranchId]*Session
}

func NewRegistry(maxConnections int) *Registry {
	r := &Registry{max: maxConnections}
	for i := range r.shards {
		r.shards[i].sessions = make(map[types.QualifiedBranchId]*Session)
	}
	return r
}

func (r *Registry) shardFor(key types.QualifiedBranchId) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return &r.shards[h.Sum32()%registryShardCount]
}

// ErrRegistryFull is returned by Admit when max_connections has been
// reached; the caller must reject the handshake rather than block.
var ErrRegistryFull = fmt.Errorf("hub: connection registry at capacity")

// Admit reserves a connection slot for key, evicting any prior session
// under the same key (a branch reconnecting replaces its old session
// rather than running two at once).
func (r *Registry) Admit(key types.QualifiedBranchId, s *Session) (*Session, error) {
	shard := r.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	old, existed := shard.sessions[key]
	if !existed {
		r.mu.Lock()
		if int(r.count) >= r.max {
			r.mu.Unlock()
			return nil, ErrRegistryFull
		}
		r.count++
		r.mu.Unlock()
	}
	shard.sessions[key] = s
	if existed {
		return old, nil
	}
	return nil, nil
}

// Remove releases key's slot if, and only if, s is still the session
// registered there — a stale Remove from a session that already lost
// a race to a newer connection must not evict the newer one.
func (r *Registry) Remove(key types.QualifiedBranchId, s *Session) {
	shard := r.shardFor(key)

	shard.mu.Lock()
	current, ok := shard.sessions[key]
	if ok && current == s {
		delete(shard.sessions, key)
	}
	shard.mu.Unlock()

	if ok && current == s {
		r.mu.Lock()
		r.count--
		r.mu.Unlock()
	}
}

func (r *Registry) Get(key types.QualifiedBranchId) (*Session, bool) {
	shard := r.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	s, ok := shard.sessions[key]
	return s, ok
}

// ListTenant returns every session currently registered for tenant.
// Iteration order is unspecified.
func (r *Registry) ListTenant(tenant types.TenantId) []*Session {
	var out []*Session
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		for key, s := range shard.sessions {
			if key.TenantId == tenant {
				out = append(out, s)
			}
		}
		shard.mu.RUnlock()
	}
	return out
}

// Count returns the current number of admitted connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.count)
}

// ForEach visits every registered session. fn must not call back into
// the registry.
func (r *Registry) ForEach(fn func(types.QualifiedBranchId, *Session)) {
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		for key, s := range shard.sessions {
			fn(key, s)
		}
		shard.mu.RUnlock()
	}
}
