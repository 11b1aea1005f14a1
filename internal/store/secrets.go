// ABOUTME: Sealed credential record persistence for the SQLite store
// ABOUTME: Saving a secret deactivates prior records for the same (user, provider)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveSecret inserts a sealed credential record as the active one for its
// (user, provider) pair, deactivating any previously active records.
func (s *SQLiteStore) SaveSecret(ctx context.Context, secret *Secret) error {
	var scopesJSON any
	if len(secret.Scopes) > 0 {
		b, err := json.Marshal(secret.Scopes)
		if err != nil {
			return fmt.Errorf("encoding secret scopes: %w", err)
		}
		scopesJSON = string(b)
	}

	var expiresAt any
	if secret.ExpiresAt != nil {
		expiresAt = secret.ExpiresAt.UTC().Format(time.RFC3339)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning secret save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE user_secrets SET is_active = 0 WHERE user_id = ? AND provider = ? AND is_active = 1`,
		secret.UserID, secret.Provider,
	)
	if err != nil {
		return fmt.Errorf("deactivating prior secrets: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_secrets (
			id, user_id, provider, cipher, iv, tag, version,
			label, base_url, scopes, expires_at, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`,
		secret.ID,
		secret.UserID,
		secret.Provider,
		secret.Cipher,
		secret.IV,
		secret.Tag,
		secret.Version,
		nullString(secret.Label),
		nullString(secret.BaseURL),
		scopesJSON,
		expiresAt,
		secret.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting secret: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing secret save: %w", err)
	}

	s.logger.Debug("saved secret", "id", secret.ID, "provider", secret.Provider)
	return nil
}

// GetActiveSecret retrieves the active credential record for (user, provider).
// Returns ErrNotFound if none is active.
func (s *SQLiteStore) GetActiveSecret(ctx context.Context, userID, provider string) (*Secret, error) {
	query := `
		SELECT id, user_id, provider, cipher, iv, tag, version,
			label, base_url, scopes, expires_at, is_active, created_at
		FROM user_secrets
		WHERE user_id = ? AND provider = ? AND is_active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`

	secret, err := scanSecret(s.db.QueryRowContext(ctx, query, userID, provider))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return secret, err
}

// ListSecrets returns all credential records for a user, newest first
func (s *SQLiteStore) ListSecrets(ctx context.Context, userID string) ([]*Secret, error) {
	query := `
		SELECT id, user_id, provider, cipher, iv, tag, version,
			label, base_url, scopes, expires_at, is_active, created_at
		FROM user_secrets
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, secret)
	}

	return secrets, rows.Err()
}

// DeleteSecret removes a credential record by ID
func (s *SQLiteStore) DeleteSecret(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_secrets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSecret(row rowScanner) (*Secret, error) {
	var secret Secret
	var label, baseURL, scopesJSON, expiresAtStr sql.NullString
	var isActive int
	var createdAtStr string

	err := row.Scan(
		&secret.ID,
		&secret.UserID,
		&secret.Provider,
		&secret.Cipher,
		&secret.IV,
		&secret.Tag,
		&secret.Version,
		&label,
		&baseURL,
		&scopesJSON,
		&expiresAtStr,
		&isActive,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning secret: %w", err)
	}

	secret.Label = label.String
	secret.BaseURL = baseURL.String
	if scopesJSON.Valid && scopesJSON.String != "" {
		if err := json.Unmarshal([]byte(scopesJSON.String), &secret.Scopes); err != nil {
			return nil, fmt.Errorf("decoding secret scopes: %w", err)
		}
	}
	if expiresAtStr.Valid && expiresAtStr.String != "" {
		t, err := time.Parse(time.RFC3339, expiresAtStr.String)
		if err == nil {
			secret.ExpiresAt = &t
		}
	}
	secret.IsActive = isActive == 1
	secret.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	return &secret, nil
}
