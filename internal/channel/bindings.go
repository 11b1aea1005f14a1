// ABOUTME: Channel agent binding management: one agent per (user, inbox)
// ABOUTME: Upserts are last-write-wins; reads return ErrNotFound when unbound

package channel

import (
	"context"
	"fmt"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// Bind attaches an agent to an inbox for a user, replacing any prior
// binding. The agent must exist and belong to the user.
func (s *Service) Bind(ctx context.Context, userID, inboxID, agentID string) error {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("loading agent: %w", err)
	}
	if agent.UserID != userID {
		return store.ErrNotFound
	}

	return s.store.UpsertChannelAgentMap(ctx, &store.ChannelAgentMap{
		UserID:  userID,
		InboxID: inboxID,
		AgentID: agentID,
	})
}

// Binding returns the agent bound to an inbox, or store.ErrNotFound
func (s *Service) Binding(ctx context.Context, userID, inboxID string) (*store.ChannelAgentMap, error) {
	return s.store.GetChannelAgentMap(ctx, userID, inboxID)
}

// Unbind removes an inbox's agent binding
func (s *Service) Unbind(ctx context.Context, userID, inboxID string) error {
	return s.store.DeleteChannelAgentMap(ctx, userID, inboxID)
}
