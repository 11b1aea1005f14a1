// ABOUTME: REST handlers for webhooks, connections, bindings, keys,
// ABOUTME: agents and thread history

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// --- Webhooks ---
//
// Delivery is at-least-once, so these endpoints acknowledge with 200
// regardless of what happens internally. Processing errors are logged
// and swallowed downstream.

func (s *Server) handleEvolutionWebhook(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("id")
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Debug("unparseable evolution webhook", "connection_id", connectionID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	s.connections.ProcessEvolutionWebhook(r.Context(), connectionID, payload)
	s.channels.HandleEvolutionMessage(r.Context(), connectionID, payload)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChatwootWebhook(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("id")
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Debug("unparseable chatwoot webhook", "connection_id", connectionID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	s.connections.ProcessChatwootWebhook(r.Context(), connectionID, payload)
	s.channels.HandleChatwootMessage(r.Context(), connectionID, payload)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Connections ---

// ConnectionResponse is the JSON shape for a connection. The sealed
// instance credential is never exposed.
type ConnectionResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	DisplayName  string         `json:"display_name,omitempty"`
	Status       string         `json:"status"`
	InstanceName string         `json:"instance_name,omitempty"`
	AccountID    string         `json:"account_id,omitempty"`
	InboxID      string         `json:"inbox_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func connectionResponse(conn *store.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:           conn.ID,
		Type:         conn.Type,
		DisplayName:  conn.DisplayName,
		Status:       conn.Status,
		InstanceName: conn.EvolutionInstanceName,
		AccountID:    conn.ChatwootAccountID,
		InboxID:      conn.ChatwootInboxID,
		Metadata:     conn.ProviderMetadata,
		CreatedAt:    conn.CreatedAt,
		UpdatedAt:    conn.UpdatedAt,
	}
}

func (s *Server) handleCreateEvolutionConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceName string `json:"instance_name"`
		DisplayName  string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstanceName == "" {
		writeError(w, http.StatusBadRequest, "instance_name is required")
		return
	}

	conn, err := s.connections.ProvisionEvolution(r.Context(), auth.UserIDFromContext(r.Context()), req.InstanceName, req.DisplayName)
	if err != nil {
		s.writeUpstreamError(w, "provisioning instance", err)
		return
	}
	writeJSON(w, http.StatusCreated, connectionResponse(conn))
}

func (s *Server) handleCreateChatwootConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"account_id"`
		InboxID     string `json:"inbox_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" || req.InboxID == "" {
		writeError(w, http.StatusBadRequest, "account_id and inbox_id are required")
		return
	}

	conn, err := s.connections.CreateChatwootConnection(r.Context(), auth.UserIDFromContext(r.Context()), req.AccountID, req.InboxID, req.DisplayName)
	if err != nil {
		s.writeUpstreamError(w, "creating chatwoot connection", err)
		return
	}
	writeJSON(w, http.StatusCreated, connectionResponse(conn))
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListConnections(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeUpstreamError(w, "listing connections", err)
		return
	}
	out := make([]ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionResponse(conn))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	result, err := s.connections.Connect(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeUpstreamError(w, "connecting instance", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.Delete(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeUpstreamError(w, "deleting connection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeUpstreamError maps service errors onto HTTP statuses. Bridge
// failures surface as 502 so callers can distinguish them from our own
// faults.
func (s *Server) writeUpstreamError(w http.ResponseWriter, action string, err error) {
	var statusErr *bridge.StatusError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "resource belongs to another user")
	case errors.As(err, &statusErr):
		s.logger.Error(action, "error", err)
		writeError(w, http.StatusBadGateway, "upstream bridge error")
	default:
		s.logger.Error(action, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// --- Channel bindings ---

// BindingResponse is the JSON shape for an inbox-to-agent binding.
type BindingResponse struct {
	InboxID   string    `json:"inbox_id"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	inboxID := r.PathValue("inbox")
	if err := s.channels.Bind(r.Context(), userID, inboxID, req.AgentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		s.writeUpstreamError(w, "binding channel", err)
		return
	}

	binding, err := s.channels.Binding(r.Context(), userID, inboxID)
	if err != nil {
		s.writeUpstreamError(w, "loading binding", err)
		return
	}
	writeJSON(w, http.StatusOK, BindingResponse{
		InboxID:   binding.InboxID,
		AgentID:   binding.AgentID,
		CreatedAt: binding.CreatedAt,
		UpdatedAt: binding.UpdatedAt,
	})
}

func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	binding, err := s.channels.Binding(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("inbox"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel not bound")
			return
		}
		s.writeUpstreamError(w, "loading binding", err)
		return
	}
	writeJSON(w, http.StatusOK, BindingResponse{
		InboxID:   binding.InboxID,
		AgentID:   binding.AgentID,
		CreatedAt: binding.CreatedAt,
		UpdatedAt: binding.UpdatedAt,
	})
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	if err := s.channels.Unbind(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("inbox")); err != nil {
		s.writeUpstreamError(w, "unbinding channel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Keys ---

// KeyResponse describes one stored credential without its ciphertext.
type KeyResponse struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Label     string     `json:"label,omitempty"`
	BaseURL   string     `json:"base_url,omitempty"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key       string     `json:"key"`
		Label     string     `json:"label,omitempty"`
		BaseURL   string     `json:"base_url,omitempty"`
		Scopes    []string   `json:"scopes,omitempty"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	opts := keyvault.SetOptions{
		Label:     req.Label,
		BaseURL:   req.BaseURL,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.vault.Set(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("provider"), req.Key, opts); err != nil {
		s.writeUpstreamError(w, "storing key", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.vault.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeUpstreamError(w, "listing keys", err)
		return
	}
	out := make([]KeyResponse, 0, len(secrets))
	for _, secret := range secrets {
		out = append(out, KeyResponse{
			ID:        secret.ID,
			Provider:  secret.Provider,
			Label:     secret.Label,
			BaseURL:   secret.BaseURL,
			Scopes:    secret.Scopes,
			ExpiresAt: secret.ExpiresAt,
			IsActive:  secret.IsActive,
			CreatedAt: secret.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	provider := r.PathValue("provider")
	id := r.PathValue("id")

	// Scope the delete to the caller's own records.
	secrets, err := s.vault.List(r.Context(), userID)
	if err != nil {
		s.writeUpstreamError(w, "listing keys", err)
		return
	}
	owned := false
	for _, secret := range secrets {
		if secret.ID == id && secret.Provider == provider {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}

	if err := s.vault.Delete(r.Context(), userID, provider, id); err != nil {
		s.writeUpstreamError(w, "deleting key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Agents ---

// AgentResponse is the JSON shape for a configured agent.
type AgentResponse struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Instructions store.AgentInstructions `json:"instructions"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func agentResponse(a *store.Agent) AgentResponse {
	return AgentResponse{
		ID:           a.ID,
		Name:         a.Name,
		Instructions: a.Instructions,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string                  `json:"name"`
		Instructions store.AgentInstructions `json:"instructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	agent := &store.Agent{
		ID:           uuid.NewString(),
		UserID:       auth.UserIDFromContext(r.Context()),
		Name:         req.Name,
		Instructions: req.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAgent(r.Context(), agent); err != nil {
		s.writeUpstreamError(w, "creating agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, agentResponse(agent))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeUpstreamError(w, "listing agents", err)
		return
	}
	out := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// ownedAgent loads an agent and rejects callers that do not own it.
func (s *Server) ownedAgent(r *http.Request) (*store.Agent, error) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(r.Context(), agent.UserID); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.ownedAgent(r)
	if err != nil {
		s.writeUpstreamError(w, "loading agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.ownedAgent(r)
	if err != nil {
		s.writeUpstreamError(w, "loading agent", err)
		return
	}

	var req struct {
		Name         string                   `json:"name"`
		Instructions *store.AgentInstructions `json:"instructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		agent.Name = req.Name
	}
	if req.Instructions != nil {
		agent.Instructions = *req.Instructions
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateAgent(r.Context(), agent); err != nil {
		s.writeUpstreamError(w, "updating agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.ownedAgent(r)
	if err != nil {
		s.writeUpstreamError(w, "loading agent", err)
		return
	}
	if err := s.store.DeleteAgent(r.Context(), agent.ID); err != nil {
		s.writeUpstreamError(w, "deleting agent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Threads ---

// ThreadResponse is the JSON shape for a thread summary.
type ThreadResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse is one persisted message in a thread history.
type MessageResponse struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Parts     []store.Part           `json:"parts"`
	Metadata  *store.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeUpstreamError(w, "listing threads", err)
		return
	}
	out := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadResponse{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) ownedThread(r *http.Request) (*store.Thread, error) {
	thread, err := s.store.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(r.Context(), thread.UserID); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	thread, err := s.ownedThread(r)
	if err != nil {
		s.writeUpstreamError(w, "loading thread", err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	msgs, err := s.store.GetThreadMessages(r.Context(), thread.ID, limit)
	if err != nil {
		s.writeUpstreamError(w, "loading messages", err)
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Parts:     m.Parts,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": thread.ID, "messages": out})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.ownedThread(r)
	if err != nil {
		s.writeUpstreamError(w, "loading thread", err)
		return
	}
	if err := s.store.DeleteThread(r.Context(), thread.ID); err != nil {
		s.writeUpstreamError(w, "deleting thread", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
