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
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/types"
)

// StaleSweeper periodically closes sessions that have gone silent
// longer than messageTimeout, freeing registry slots a dead peer would
// otherwise hold forever.
type StaleSweeper struct {
	registry        *Registry
	messageTimeout  time.Duration
	sweepInterval   time.Duration
	log             *zap.SugaredLogger
}

func NewStaleSweeper(registry *Registry, messageTimeout time.Duration, log *zap.SugaredLogger) *StaleSweeper {
	interval := messageTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	return &StaleSweeper{registry: registry, messageTimeout: messageTimeout, sweepInterval: interval, log: log}
}

// Run blocks, sweeping on a fixed interval until ctx is cancelled.
func (s *StaleSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *StaleSweeper) sweep() {
	var stale []*Session
	s.registry.ForEach(func(_ types.QualifiedBranchId, sess *Session) {
		if sess.IdleSince() > s.messageTimeout {
			stale = append(stale, sess)
		}
	})
	for _, sess := range stale {
		s.log.Infow("closing stale session", "session", sess.Id, "branch", sess.Branch)
		sess.Close(websocket.CloseGoingAway, "heartbeat timeout")
		s.registry.Remove(sess.QualifiedId(), sess)
	}
}
