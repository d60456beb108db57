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
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/erigontech/syncfabric/internal/conflict"
	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/storage"
	"github.com/erigontech/syncfabric/internal/types"
)

// Hub wires the registry, router, authenticator, and catalog into one
// running broker and exposes it as an http.Handler.
type Hub struct {
	cfg     Config
	gateway storage.Gateway
	auth    *Authenticator
	registry *Registry
	router   *Router
	offline  *OfflineQueue
	metrics  *Metrics
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
	conflicts *ConflictState
}

func NewHub(cfg Config, gateway storage.Gateway, auth *Authenticator, registry *Registry, router *Router, offline *OfflineQueue, metrics *Metrics, log *zap.SugaredLogger) *Hub {
	return &Hub{
		cfg:       cfg,
		gateway:   gateway,
		auth:      auth,
		registry:  registry,
		router:    router,
		offline:   offline,
		metrics:   metrics,
		log:       log,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		conflicts: NewConflictState(),
	}
}

func (h *Hub) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/ws", h.handleWS)
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	r.Post("/auth/token", h.handleIssueToken)
	r.Route("/admin/branches", func(r chi.Router) {
		r.Get("/", h.handleListBranches)
		r.Post("/", h.handleCreateBranch)
		r.Put("/{branchId}/status", h.handleUpdateBranchStatus)
	})
	return r
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": h.registry.Count(),
	})
}

type tokenRequest struct {
	TenantId types.TenantId `json:"tenant_id"`
	BranchId types.BranchId `json:"branch_id"`
	ApiKey   string         `json:"api_key"`
}

func (h *Hub) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	branch, err := h.auth.AuthenticateBranch(r.Context(), protocol.ConnectRequest{
		TenantId: req.TenantId,
		BranchId: req.BranchId,
		ApiKey:   req.ApiKey,
	})
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	token, err := h.auth.IssueToken(req.TenantId, branch.Id)
	if err != nil {
		http.Error(w, "token issuance failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *Hub) handleListBranches(w http.ResponseWriter, r *http.Request) {
	tenant := types.TenantId(r.URL.Query().Get("tenant_id"))
	if tenant == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	branches, err := h.gateway.ListBranchesForTenant(r.Context(), tenant)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(branches)
}

type createBranchRequest struct {
	TenantId types.TenantId `json:"tenant_id"`
	Name     string         `json:"name"`
	ApiKey   string         `json:"api_key"`
}

func (h *Hub) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	hash, err := storage.HashApiKey(req.ApiKey)
	if err != nil {
		http.Error(w, "key hashing failed", http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()
	branch := types.Branch{
		Id:         types.BranchId(uuid.NewString()),
		TenantId:   req.TenantId,
		Name:       req.Name,
		Status:     types.BranchOffline,
		ApiKeyHash: hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.gateway.CreateBranch(r.Context(), branch); err != nil {
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(branch)
}

type updateStatusRequest struct {
	TenantId types.TenantId     `json:"tenant_id"`
	Status   types.BranchStatus `json:"status"`
}

func (h *Hub) handleUpdateBranchStatus(w http.ResponseWriter, r *http.Request) {
	branchID := types.BranchId(chi.URLParam(r, "branchId"))
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if err := h.gateway.UpdateBranchStatus(r.Context(), req.TenantId, branchID, req.Status); err != nil {
		if err == types.ErrNotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWS performs the handshake (first frame must be Connect),
// queues any offline backlog onto the session, admits the session into
// the registry, and then runs its inbound/outbound pumps until it closes.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	codec := protocol.MessageCodec(protocol.TextCodec{})
	_, first, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	msg, err := codec.Decode(first)
	if err != nil {
		// Not a text frame: the branch may have chosen the binary codec,
		// which the session then keeps using for every later frame.
		if bmsg, berr := (protocol.BinaryCodec{}).Decode(first); berr == nil {
			codec, msg, err = protocol.BinaryCodec{}, bmsg, nil
		}
	}
	if err != nil || msg.Payload.Type != protocol.TypeConnect {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid_handshake"))
		_ = conn.Close()
		return
	}
	connectReq, ok := msg.Payload.Data.(protocol.ConnectRequest)
	if !ok || connectReq.TenantId == "" || connectReq.BranchId == "" || connectReq.ApiKey == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid_handshake"))
		_ = conn.Close()
		return
	}

	branch, err := h.auth.AuthenticateBranch(r.Context(), connectReq)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth_failed"))
		_ = conn.Close()
		return
	}

	tenant, err := h.gateway.GetTenant(r.Context(), connectReq.TenantId)
	if err != nil {
		_ = conn.Close()
		return
	}

	// The global registry cap is checked later, by Admit; the per-tenant
	// cap comes from the tenant record and is checked here, after the
	// catalog lookup. A reconnecting branch does not count against
	// itself: Admit replaces its old session rather than adding one.
	if tenant.MaxBranches > 0 {
		online := h.registry.ListTenant(connectReq.TenantId)
		already := false
		for _, s := range online {
			if s.Branch == branch.Id {
				already = true
				break
			}
		}
		if !already && len(online) >= tenant.MaxBranches {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "tenant connection limit reached"))
			_ = conn.Close()
			return
		}
	}

	sessionID := uuid.NewString()
	session := NewSession(sessionID, connectReq.TenantId, branch.Id, conn, codec, h.log)
	session.Strategy = protocol.ConflictStrategy(tenant.ConflictStrategy)
	if tenant.RateLimitPerSec > 0 {
		session.SetRateLimit(tenant.RateLimitPerSec)
	} else {
		session.SetRateLimit(h.cfg.RateLimitPerSecond)
	}

	ack := protocol.NewMessage(session.Branch, nil, protocol.Payload{
		Type: protocol.TypeConnectAck,
		Data: protocol.ConnectAck{
			SessionId:             sessionID,
			ServerVersion:         "1.0.0",
			HeartbeatIntervalSecs: uint64(h.cfg.HeartbeatInterval.Seconds()),
			AssignedConfig:        map[string]string{},
		},
	})
	session.Send(ack)

	// The offline backlog is queued onto the outbox before Admit makes
	// the session reachable through the router, so nothing routed
	// concurrently by another session can land ahead of it.
	var backlog []protocol.Message
	if h.offline != nil {
		if drained, err := h.offline.Drain(session.QualifiedId()); err != nil {
			h.log.Warnw("failed to drain offline queue", "branch", session.Branch, "error", err)
		} else {
			backlog = drained
			for _, m := range backlog {
				session.Send(m)
			}
		}
	}

	if prior, err := h.registry.Admit(session.QualifiedId(), session); err != nil {
		// Hand the drained backlog back so the next reconnect still
		// sees it; the queue was already cleared by Drain.
		for _, m := range backlog {
			if qerr := h.offline.Enqueue(session.QualifiedId(), m); qerr != nil {
				h.log.Errorw("failed to requeue offline backlog", "branch", session.Branch, "error", qerr)
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "registry full"))
		_ = conn.Close()
		return
	} else if prior != nil {
		prior.Close(websocket.CloseGoingAway, "superseded by new connection")
	}
	defer h.registry.Remove(session.QualifiedId(), session)

	session.setState(StateAuthenticated)
	h.metrics.ActiveConnections.Inc()
	h.metrics.ConnectionsTotal.Inc()
	defer h.metrics.ActiveConnections.Dec()

	// Keep the catalog's view of branch status in step with the
	// registry, so catalog consumers (admin surface, online listings)
	// see what the hub sees. Best-effort: a failed write here must not
	// tear down a healthy session.
	if err := h.gateway.UpdateBranchStatus(r.Context(), connectReq.TenantId, branch.Id, types.BranchOnline); err != nil {
		h.log.Warnw("failed to mark branch online", "branch", branch.Id, "error", err)
	}
	defer func() {
		if err := h.gateway.UpdateBranchStatus(context.Background(), connectReq.TenantId, branch.Id, types.BranchOffline); err != nil {
			h.log.Warnw("failed to mark branch offline", "branch", branch.Id, "error", err)
		}
	}()

	resolver := conflict.NewResolver(conflict.Strategy(session.Strategy))
	handler := NewMessageHandler(h, session, resolver)

	go session.RunOutbound()
	session.RunInbound(handler.Handle)
}

// Shutdown closes every live session, for use during graceful server
// shutdown so branches see a clean disconnect rather than a reset.
func (h *Hub) Shutdown(ctx context.Context) {
	h.registry.ForEach(func(_ types.QualifiedBranchId, s *Session) {
		s.Close(websocket.CloseGoingAway, "server shutting down")
	})
}
