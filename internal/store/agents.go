// ABOUTME: Agent CRUD operations for the SQLite store
// ABOUTME: Agents carry prompt instructions and an updated_at touched by the reconciler

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateAgent inserts a new agent
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	instructionsJSON, err := json.Marshal(agent.Instructions)
	if err != nil {
		return fmt.Errorf("encoding agent instructions: %w", err)
	}

	query := `
		INSERT INTO agents (id, user_id, name, instructions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		agent.ID,
		agent.UserID,
		agent.Name,
		string(instructionsJSON),
		agent.CreatedAt.UTC().Format(time.RFC3339),
		agent.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "name", agent.Name)
	return nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, user_id, name, instructions, created_at, updated_at
		FROM agents
		WHERE id = ?
	`

	return s.scanAgent(s.db.QueryRowContext(ctx, query, id))
}

// ListAgents returns all agents for a user, newest first
func (s *SQLiteStore) ListAgents(ctx context.Context, userID string) ([]*Agent, error) {
	query := `
		SELECT id, user_id, name, instructions, created_at, updated_at
		FROM agents
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var agent Agent
		var instructionsJSON, createdAtStr, updatedAtStr string
		if err := rows.Scan(&agent.ID, &agent.UserID, &agent.Name, &instructionsJSON, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		if err := json.Unmarshal([]byte(instructionsJSON), &agent.Instructions); err != nil {
			return nil, fmt.Errorf("decoding agent instructions: %w", err)
		}
		agent.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		agent.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
		agents = append(agents, &agent)
	}

	return agents, rows.Err()
}

// UpdateAgent replaces an agent's name and instructions
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	instructionsJSON, err := json.Marshal(agent.Instructions)
	if err != nil {
		return fmt.Errorf("encoding agent instructions: %w", err)
	}

	query := `
		UPDATE agents
		SET name = ?, instructions = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		agent.Name,
		string(instructionsJSON),
		time.Now().UTC().Format(time.RFC3339),
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAgent bumps an agent's updated_at without changing its content
func (s *SQLiteStore) TouchAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("touching agent: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*Agent, error) {
	var agent Agent
	var instructionsJSON, createdAtStr, updatedAtStr string

	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&instructionsJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	if err := json.Unmarshal([]byte(instructionsJSON), &agent.Instructions); err != nil {
		return nil, fmt.Errorf("decoding agent instructions: %w", err)
	}
	agent.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	agent.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
	return &agent, nil
}
