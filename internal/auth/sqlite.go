package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// store persists the single admin credential row and API keys.
type store struct {
	db *sql.DB
}

func newStore(db *sql.DB) (*store, error) {
	s := &store{db: db}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS admin_auth (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		password_hash TEXT NOT NULL,
		totp_secret   TEXT NOT NULL DEFAULT '',
		totp_enabled  INTEGER NOT NULL DEFAULT 0,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL DEFAULT '',
		prefix     TEXT NOT NULL,
		hash       TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_used  INTEGER
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seedPassword inserts the admin password hash if no credential row exists.
func (s *store) seedPassword(ctx context.Context, hash string) error {
	query := `
		INSERT INTO admin_auth (id, password_hash, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, hash, time.Now().Unix())
	return err
}

func (s *store) passwordHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM admin_auth WHERE id = 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("admin credential not initialized")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read admin credential: %w", err)
	}
	return hash, nil
}

func (s *store) setPasswordHash(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE admin_auth SET password_hash = ?, updated_at = ? WHERE id = 1`,
		hash, time.Now().Unix())
	return err
}

func (s *store) totpState(ctx context.Context) (secret string, enabled bool, err error) {
	var enabledInt int
	err = s.db.QueryRowContext(ctx,
		`SELECT totp_secret, totp_enabled FROM admin_auth WHERE id = 1`).Scan(&secret, &enabledInt)
	if err != nil {
		return "", false, fmt.Errorf("failed to read 2FA state: %w", err)
	}
	return secret, enabledInt != 0, nil
}

func (s *store) setTOTP(ctx context.Context, secret string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE admin_auth SET totp_secret = ?, totp_enabled = ?, updated_at = ? WHERE id = 1`,
		secret, enabledInt, time.Now().Unix())
	return err
}

func (s *store) createAPIKey(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (id, label, prefix, hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		key.ID, key.Label, key.Prefix, key.Hash, key.CreatedAt.Unix())
	return err
}

func (s *store) listAPIKeys(ctx context.Context) ([]*APIKey, error) {
	query := `
		SELECT id, label, prefix, hash, created_at, last_used
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func (s *store) apiKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	query := `
		SELECT id, label, prefix, hash, created_at, last_used
		FROM api_keys
		WHERE hash = ?
	`

	row := s.db.QueryRowContext(ctx, query, hash)
	return scanAPIKey(row)
}

func (s *store) touchAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (s *store) deleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

func scanAPIKey(scanner interface {
	Scan(dest ...interface{}) error
}) (*APIKey, error) {
	var key APIKey
	var createdAt int64
	var lastUsed sql.NullInt64

	err := scanner.Scan(
		&key.ID,
		&key.Label,
		&key.Prefix,
		&key.Hash,
		&createdAt,
		&lastUsed,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	key.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastUsed.Valid {
		used := time.Unix(lastUsed.Int64, 0).UTC()
		key.LastUsed = &used
	}

	return &key, nil
}
