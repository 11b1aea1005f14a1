// ABOUTME: Channel auto-reply service driven by Chatwoot webhooks
// ABOUTME: One-shot completion through the bound agent, every failure swallowed

package channel

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/dedupe"
	"github.com/Bakhitov/crafty-gateway/internal/llm"
	"github.com/Bakhitov/crafty-gateway/internal/prompt"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// ModelResolver resolves a credentialed model for a user
type ModelResolver interface {
	Resolve(ctx context.Context, userID, provider, model string) (llm.Model, error)
}

// Service runs the channel auto-reply path: a genuine incoming Chatwoot
// message on a bound inbox gets one non-streaming completion from the
// bound agent, relayed back as an outgoing message. Everything in this
// package is best effort; webhook handlers always ack.
type Service struct {
	store    store.Store
	chatwoot *bridge.ChatwootClient
	resolver ModelResolver
	seen     *dedupe.Cache

	// defaults for the auto-reply completion
	provider string
	model    string

	logger *slog.Logger
}

// NewService creates a channel service. provider and model pick the
// auto-reply completion model; empty values use the resolver defaults.
func NewService(st store.Store, cw *bridge.ChatwootClient, resolver ModelResolver, seen *dedupe.Cache, provider, model string) *Service {
	if provider == "" {
		provider = llm.ProviderOpenAI
	}
	return &Service{
		store:    st,
		chatwoot: cw,
		resolver: resolver,
		seen:     seen,
		provider: provider,
		model:    model,
		logger:   slog.Default().With("component", "channel"),
	}
}

// HandleChatwootMessage processes one Chatwoot webhook payload. Only a
// genuine incoming message_created with a conversation id and text
// triggers a reply; anything else is ignored. Never returns an error.
func (s *Service) HandleChatwootMessage(ctx context.Context, connectionID string, payload map[string]any) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil || conn.ChatwootInboxID == "" {
		return
	}

	event := strings.ToLower(firstString(payload, "event", "name"))
	if !strings.Contains(event, "message") {
		return
	}

	messageType := strings.ToLower(firstString(payload, "message_type"))
	if messageType == "" {
		if msg, ok := payload["message"].(map[string]any); ok {
			messageType = strings.ToLower(firstString(msg, "message_type"))
		}
	}
	if messageType != "" && messageType != "incoming" {
		return
	}

	conversationID := conversationIDFrom(payload)
	text := strings.TrimSpace(firstString(payload, "content"))
	if text == "" {
		if msg, ok := payload["message"].(map[string]any); ok {
			text = strings.TrimSpace(firstString(msg, "content"))
		}
	}
	if conversationID == 0 || text == "" {
		return
	}

	mapping, err := s.store.GetChannelAgentMap(ctx, conn.UserID, conn.ChatwootInboxID)
	if err != nil {
		return
	}
	agent, err := s.store.GetAgent(ctx, mapping.AgentID)
	if err != nil || agent.UserID != conn.UserID {
		return
	}

	system := prompt.Merge(agent.Instructions.Role, agent.Instructions.SystemPrompt)

	model, err := s.resolver.Resolve(ctx, conn.UserID, s.provider, s.model)
	if err != nil {
		s.logger.Debug("auto-reply model unavailable", "connection_id", conn.ID, "error", err)
		return
	}

	reply, err := model.Generate(ctx, &llm.Request{
		System:   system,
		Messages: []llm.Message{{Role: "user", Text: text}},
	})
	if err != nil {
		s.logger.Debug("auto-reply generation failed", "connection_id", conn.ID, "error", err)
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}

	if err := s.chatwoot.CreateMessage(ctx, conn.ChatwootAccountID, conversationID, reply, "outgoing"); err != nil {
		s.logger.Debug("auto-reply relay failed", "connection_id", conn.ID, "error", err)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func conversationIDFrom(payload map[string]any) int64 {
	if conv, ok := payload["conversation"].(map[string]any); ok {
		if id, ok := conv["id"].(float64); ok {
			return int64(id)
		}
	}
	switch v := payload["conversation_id"].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}
