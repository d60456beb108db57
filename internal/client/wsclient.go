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

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/protocol"
)

// Reconnection backoff bounds: start at 1s, double each attempt, cap
// at 60s.
const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff      = 60 * time.Second
)

// Client is one branch's persistent connection to the hub. It owns
// reconnection: callers send through it without worrying whether the
// underlying socket is currently up.
type Client struct {
	cfg   Config
	codec protocol.MessageCodec
	log   *zap.SugaredLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	session string

	onMessage func(protocol.Message)
}

func NewClient(cfg Config, codec protocol.MessageCodec, log *zap.SugaredLogger, onMessage func(protocol.Message)) *Client {
	return &Client{cfg: cfg, codec: codec, log: log, onMessage: onMessage}
}

// Run connects, handshakes, and processes inbound frames until ctx is
// cancelled, reconnecting with exponential backoff on every drop.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialBackoff
	b.MaxInterval = defaultMaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry forever; only ctx cancellation stops us

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			wait := b.NextBackOff()
			c.log.Warnw("connection dropped, reconnecting", "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.HubURL, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	connect := protocol.NewMessage(c.cfg.BranchId, nil, protocol.Payload{
		Type: protocol.TypeConnect,
		Data: protocol.ConnectRequest{
			TenantId:     c.cfg.TenantId,
			BranchId:     c.cfg.BranchId,
			ApiKey:       c.cfg.ApiKey,
			Version:      "1.0.0",
			Capabilities: []string{"sync_v1"},
			Metadata:     map[string]string{},
		},
	})
	encoded, err := c.codec.Encode(connect)
	if err != nil {
		return fmt.Errorf("encode connect: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encoded); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	_, ackData, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read connect ack: %w", err)
	}
	ackMsg, err := c.codec.Decode(ackData)
	if err != nil {
		return fmt.Errorf("decode connect ack: %w", err)
	}
	if ackMsg.Payload.Type != protocol.TypeConnectAck {
		return fmt.Errorf("handshake rejected: got %s", ackMsg.Payload.Type)
	}
	heartbeatEvery := 30 * time.Second
	if ack, ok := ackMsg.Payload.Data.(protocol.ConnectAck); ok {
		c.mu.Lock()
		c.session = ack.SessionId
		c.mu.Unlock()
		if ack.HeartbeatIntervalSecs > 0 {
			heartbeatEvery = time.Duration(ack.HeartbeatIntervalSecs) * time.Second
		}
	}
	c.log.Infow("connected to hub", "branch", c.cfg.BranchId)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.runHeartbeat(hbCtx, heartbeatEvery)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		m, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warnw("dropping undecodable frame from hub", "error", err)
			continue
		}
		c.onMessage(m)
	}
}

// runHeartbeat emits a Heartbeat frame every interval so the hub's
// stale sweeper never mistakes an idle-but-healthy branch for a dead
// one. It stops when ctx is cancelled, which runOnce ties to the life
// of the current connection.
func (c *Client) runHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := protocol.NewMessage(c.cfg.BranchId, nil, protocol.Payload{Type: protocol.TypeHeartbeat})
			if err := c.Send(hb); err != nil {
				c.log.Debugw("heartbeat send failed", "error", err)
				return
			}
		}
	}
}

// Send writes m to the currently active connection, if any. Writes are
// serialized under the client mutex: the sync loop and the heartbeat
// ticker both write, and the underlying connection permits only one
// concurrent writer. Callers that need delivery guarantees beyond
// best-effort should await a SyncAck/MessageDelivered response instead
// of trusting this return.
func (c *Client) Send(m protocol.Message) error {
	encoded, err := c.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("client: not connected")
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, encoded)
}
