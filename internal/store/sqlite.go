// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides thread/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_user_id
			ON threads(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			parts TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_created
			ON messages(thread_id, created_at);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			instructions TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_user_id
			ON agents(user_id);

		CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			evolution_instance_name TEXT,
			evolution_apikey TEXT,
			chatwoot_account_id TEXT,
			chatwoot_inbox_id TEXT,
			provider_metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_connections_user_id
			ON connections(user_id);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_instance_name
			ON connections(evolution_instance_name)
			WHERE evolution_instance_name IS NOT NULL;

		CREATE TABLE IF NOT EXISTS channel_agent_maps (
			user_id TEXT NOT NULL,
			inbox_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, inbox_id)
		);

		CREATE TABLE IF NOT EXISTS user_secrets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			cipher TEXT NOT NULL,
			iv TEXT NOT NULL,
			tag TEXT NOT NULL,
			version TEXT NOT NULL,
			label TEXT,
			base_url TEXT,
			scopes TEXT,
			expires_at DATETIME,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_secrets_lookup
			ON user_secrets(user_id, provider, is_active);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks whether an error is a SQLite constraint failure
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateThread inserts a new thread.
// Returns ErrDuplicateThread if the ID is already taken.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	query := `
		INSERT INTO threads (id, user_id, title, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.UserID,
		thread.Title,
		thread.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("created thread", "id", thread.ID, "user_id", thread.UserID)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `
		SELECT id, user_id, title, created_at
		FROM threads
		WHERE id = ?
	`

	var thread Thread
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&thread.ID,
		&thread.UserID,
		&thread.Title,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	thread.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	return &thread, nil
}

// ListThreads returns all threads for a user, newest first
func (s *SQLiteStore) ListThreads(ctx context.Context, userID string) ([]*Thread, error) {
	query := `
		SELECT id, user_id, title, created_at
		FROM threads
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var thread Thread
		var createdAtStr string
		if err := rows.Scan(&thread.ID, &thread.UserID, &thread.Title, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		thread.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		threads = append(threads, &thread)
	}

	return threads, rows.Err()
}

// DeleteThread removes a thread and its messages
func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("deleting thread messages: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMessage persists a message. Saving a message with an existing ID
// replaces that row in place, which keeps replayed writes idempotent.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	partsJSON, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("encoding message parts: %w", err)
	}

	var metadataJSON any
	if msg.Metadata != nil {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding message metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	query := `
		INSERT INTO messages (id, thread_id, role, parts, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			parts = excluded.parts,
			metadata = excluded.metadata
	`

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ThreadID,
		msg.Role,
		string(partsJSON),
		metadataJSON,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "thread_id", msg.ThreadID, "role", msg.Role)
	return nil
}

// GetThreadMessages retrieves messages for a thread, limited to the most recent `limit` messages.
// Messages are returned in chronological order (oldest first).
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, then reorder ascending.
		// rowid breaks created_at ties in insertion order.
		query = `
			SELECT id, thread_id, role, parts, metadata, created_at
			FROM (
				SELECT rowid, id, thread_id, role, parts, metadata, created_at
				FROM messages
				WHERE thread_id = ?
				ORDER BY created_at DESC, rowid DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, rowid ASC
		`
		args = []any{threadID, limit}
	} else {
		query = `
			SELECT id, thread_id, role, parts, metadata, created_at
			FROM messages
			WHERE thread_id = ?
			ORDER BY created_at ASC, rowid ASC
		`
		args = []any{threadID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var partsJSON string
		var metadataJSON sql.NullString
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &partsJSON, &metadataJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal([]byte(partsJSON), &msg.Parts); err != nil {
			return nil, fmt.Errorf("decoding message parts: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var md MessageMetadata
			if err := json.Unmarshal([]byte(metadataJSON.String), &md); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
			msg.Metadata = &md
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
