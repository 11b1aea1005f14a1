// ABOUTME: Channel agent map persistence for the SQLite store
// ABOUTME: One binding per (user, inbox); upsert is last-write-wins

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertChannelAgentMap creates or replaces the binding for (user, inbox).
// A second upsert for the same pair rebinds the inbox to the new agent.
func (s *SQLiteStore) UpsertChannelAgentMap(ctx context.Context, m *ChannelAgentMap) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO channel_agent_maps (user_id, inbox_id, agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, inbox_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, m.UserID, m.InboxID, m.AgentID, now, now)
	if err != nil {
		return fmt.Errorf("upserting channel agent map: %w", err)
	}

	s.logger.Debug("bound inbox to agent", "user_id", m.UserID, "inbox_id", m.InboxID, "agent_id", m.AgentID)
	return nil
}

// GetChannelAgentMap retrieves the binding for (user, inbox).
// Returns ErrNotFound if no binding exists.
func (s *SQLiteStore) GetChannelAgentMap(ctx context.Context, userID, inboxID string) (*ChannelAgentMap, error) {
	query := `
		SELECT user_id, inbox_id, agent_id, created_at, updated_at
		FROM channel_agent_maps
		WHERE user_id = ? AND inbox_id = ?
	`

	var m ChannelAgentMap
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, userID, inboxID).Scan(
		&m.UserID,
		&m.InboxID,
		&m.AgentID,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel agent map: %w", err)
	}

	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
	return &m, nil
}

// DeleteChannelAgentMap removes the binding for (user, inbox)
func (s *SQLiteStore) DeleteChannelAgentMap(ctx context.Context, userID, inboxID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_agent_maps WHERE user_id = ? AND inbox_id = ?`,
		userID, inboxID,
	)
	if err != nil {
		return fmt.Errorf("deleting channel agent map: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
