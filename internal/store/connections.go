// ABOUTME: Connection CRUD operations for the SQLite store
// ABOUTME: Status writes replace one column; metadata merges are additive

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const connectionColumns = `
	id, user_id, type, display_name, status,
	evolution_instance_name, evolution_apikey,
	chatwoot_account_id, chatwoot_inbox_id,
	provider_metadata, created_at, updated_at
`

// CreateConnection inserts a new connection
func (s *SQLiteStore) CreateConnection(ctx context.Context, conn *Connection) error {
	metadata := conn.ProviderMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding provider metadata: %w", err)
	}

	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !conn.CreatedAt.IsZero() {
		createdAt = conn.CreatedAt.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Type,
		conn.DisplayName,
		conn.Status,
		nullString(conn.EvolutionInstanceName),
		nullString(conn.EvolutionAPIKey),
		nullString(conn.ChatwootAccountID),
		nullString(conn.ChatwootInboxID),
		string(metadataJSON),
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}

	s.logger.Debug("created connection", "id", conn.ID, "type", conn.Type, "status", conn.Status)
	return nil
}

// GetConnection retrieves a connection by ID.
// Returns ErrNotFound if the connection doesn't exist.
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ?`
	return s.scanConnection(s.db.QueryRowContext(ctx, query, id))
}

// GetConnectionByInstanceName resolves a connection from its bridge instance name
func (s *SQLiteStore) GetConnectionByInstanceName(ctx context.Context, name string) (*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE evolution_instance_name = ?`
	return s.scanConnection(s.db.QueryRowContext(ctx, query, name))
}

// GetConnectionByInboxID resolves a user's connection from its inbox id
func (s *SQLiteStore) GetConnectionByInboxID(ctx context.Context, userID, inboxID string) (*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = ? AND chatwoot_inbox_id = ?`
	return s.scanConnection(s.db.QueryRowContext(ctx, query, userID, inboxID))
}

// ListConnections returns all connections for a user, newest first
func (s *SQLiteStore) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnectionRow(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	return conns, rows.Err()
}

// ListConnectionsByType returns every connection of one bridge type
// across all users, oldest first. Used by the status poller.
func (s *SQLiteStore) ListConnectionsByType(ctx context.Context, connType string) ([]*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE type = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, connType)
	if err != nil {
		return nil, fmt.Errorf("querying connections by type: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnectionRow(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	return conns, rows.Err()
}

// UpdateConnectionStatus writes a new canonical status.
// Writing the current status again is a harmless no-op row update.
func (s *SQLiteStore) UpdateConnectionStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated connection status", "id", id, "status", status)
	return nil
}

// UpdateConnectionDisplayName writes a new display name
func (s *SQLiteStore) UpdateConnectionDisplayName(ctx context.Context, id, displayName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating connection display name: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeConnectionMetadata applies an additive patch to provider_metadata.
// Keys present in the patch overwrite; keys absent from the patch survive.
func (s *SQLiteStore) MergeConnectionMetadata(ctx context.Context, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metadata merge: %w", err)
	}
	defer tx.Rollback()

	var currentJSON string
	err = tx.QueryRowContext(ctx, `SELECT provider_metadata FROM connections WHERE id = ?`, id).Scan(&currentJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading provider metadata: %w", err)
	}

	merged := map[string]any{}
	if currentJSON != "" {
		if err := json.Unmarshal([]byte(currentJSON), &merged); err != nil {
			return fmt.Errorf("decoding provider metadata: %w", err)
		}
	}
	for k, v := range patch {
		merged[k] = v
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding provider metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE connections SET provider_metadata = ?, updated_at = ? WHERE id = ?`,
		string(mergedJSON),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("writing provider metadata: %w", err)
	}

	return tx.Commit()
}

// DeleteConnection removes a connection
func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanConnection(row *sql.Row) (*Connection, error) {
	conn, err := scanConnectionRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return conn, err
}

func scanConnectionRow(row rowScanner) (*Connection, error) {
	var conn Connection
	var instanceName, apiKey, accountID, inboxID sql.NullString
	var metadataJSON, createdAtStr, updatedAtStr string

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Type,
		&conn.DisplayName,
		&conn.Status,
		&instanceName,
		&apiKey,
		&accountID,
		&inboxID,
		&metadataJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	conn.EvolutionInstanceName = instanceName.String
	conn.EvolutionAPIKey = apiKey.String
	conn.ChatwootAccountID = accountID.String
	conn.ChatwootInboxID = inboxID.String

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &conn.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("decoding provider metadata: %w", err)
		}
	}
	conn.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	conn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
	return &conn, nil
}
