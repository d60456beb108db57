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
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/types"
)

// SessionState is the connection lifecycle. A session only ever moves
// forward: Handshaking -> Authenticated -> Closing. There is no path
// back to Handshaking once a Connect has succeeded or failed.
type SessionState int

const (
	StateHandshaking SessionState = iota
	StateAuthenticated
	StateClosing
)

// Session is one live WebSocket connection from a branch client. Its
// inbound and outbound pumps run as two linked goroutines: either one
// exiting cancels ctx, which tears down the other.
type Session struct {
	Id       string
	Tenant   types.TenantId
	Branch   types.BranchId
	Strategy protocol.ConflictStrategy

	conn    *websocket.Conn
	codec   protocol.MessageCodec
	log     *zap.SugaredLogger
	outbox  chan protocol.Message
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        SessionState
	lastActivity time.Time
}

func NewSession(id string, tenant types.TenantId, branch types.BranchId, conn *websocket.Conn, codec protocol.MessageCodec, log *zap.SugaredLogger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		Id:           id,
		Tenant:       tenant,
		Branch:       branch,
		conn:         conn,
		codec:        codec,
		log:          log,
		outbox:       make(chan protocol.Message, 256),
		ctx:          ctx,
		cancel:       cancel,
		state:        StateHandshaking,
		lastActivity: time.Now(),
	}
}

// SetRateLimit bounds the session's inbound message rate to perSec
// messages per second with an equal burst. Zero or negative leaves the
// session unlimited.
func (s *Session) SetRateLimit(perSec int) {
	if perSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
}

// AllowMessage consumes one token from the session's rate limiter,
// reporting whether the frame may be processed.
func (s *Session) AllowMessage() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

func (s *Session) QualifiedId() types.QualifiedBranchId {
	return types.QualifiedBranchId{TenantId: s.Tenant, BranchId: s.Branch}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Send enqueues a message for the outbound pump. It never blocks
// indefinitely: a full outbox means the branch is not draining fast
// enough, and the session is closed rather than let memory grow
// unbounded.
func (s *Session) Send(m protocol.Message) {
	select {
	case s.outbox <- m:
	case <-s.ctx.Done():
	default:
		s.log.Warnw("outbox full, closing slow session", "session", s.Id)
		s.Close(websocket.ClosePolicyViolation, "outbox overflow")
	}
}

// Close begins the Closing transition and cancels ctx, which stops
// both pumps. Calling Close more than once is safe.
func (s *Session) Close(code int, reason string) {
	s.setState(StateClosing)
	s.cancel()
	deadline := time.Now().Add(2 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = s.conn.Close()
}

// RunOutbound drains the outbox onto the wire until ctx is cancelled.
func (s *Session) RunOutbound() {
	defer s.cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.outbox:
			encoded, err := s.codec.Encode(m)
			if err != nil {
				s.log.Errorw("encode outbound message", "error", err, "session", s.Id)
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, encoded); err != nil {
				s.log.Infow("write failed, closing session", "session", s.Id, "error", err)
				return
			}
		}
	}
}

// RunInbound reads frames off the wire, decodes them, and invokes
// handle for each one, until the connection errors or ctx cancels.
func (s *Session) RunInbound(handle func(protocol.Message)) {
	defer s.cancel()
	for {
		if s.ctx.Err() != nil {
			return
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Infow("read failed, closing session", "session", s.Id, "error", err)
			return
		}
		s.Touch()
		m, err := s.codec.Decode(data)
		if err != nil {
			s.log.Warnw("dropping undecodable frame", "session", s.Id, "error", err)
			continue
		}
		handle(m)
	}
}
