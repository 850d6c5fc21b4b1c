package invite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore implements Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(db *sql.DB) (Store, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the links table
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		token      TEXT PRIMARY KEY,
		label      TEXT NOT NULL DEFAULT '',
		password   TEXT NOT NULL,
		max_uses   INTEGER NOT NULL DEFAULT 1,
		uses       INTEGER NOT NULL DEFAULT 0,
		object_id  TEXT NOT NULL DEFAULT '',
		protected  INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_links_expires_at ON links(expires_at);
	CREATE INDEX IF NOT EXISTS idx_links_object_id ON links(object_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateLink creates a new invite link
func (s *SQLiteStore) CreateLink(ctx context.Context, link *Link) error {
	var expiresAt interface{}
	if link.ExpiresAt != nil {
		expiresAt = link.ExpiresAt.Unix()
	}

	query := `
		INSERT INTO links (token, label, password, max_uses, uses, object_id, protected, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		link.Token,
		link.Label,
		link.Password,
		link.MaxUses,
		link.Uses,
		link.ObjectID,
		boolInt(link.Protected),
		expiresAt,
		link.CreatedAt.Unix(),
	)

	return err
}

// GetLink retrieves a link by token
func (s *SQLiteStore) GetLink(ctx context.Context, token string) (*Link, error) {
	query := `
		SELECT token, label, password, max_uses, uses, object_id, protected, expires_at, created_at
		FROM links
		WHERE token = ?
	`

	row := s.db.QueryRowContext(ctx, query, token)
	return s.scanLink(row)
}

// ListLinks lists all links, newest first
func (s *SQLiteStore) ListLinks(ctx context.Context) ([]*Link, error) {
	query := `
		SELECT token, label, password, max_uses, uses, object_id, protected, expires_at, created_at
		FROM links
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		link, err := s.scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// UpdateLabel updates a link's label
func (s *SQLiteStore) UpdateLabel(ctx context.Context, token, label string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE links SET label = ? WHERE token = ?`, label, token)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// BindLink consumes one use and records the bound object. The conditional
// update is the single point of arbitration between concurrent binders:
// exactly one wins, the rest see ErrLinkExhausted.
func (s *SQLiteStore) BindLink(ctx context.Context, token, objectID string, protected bool) error {
	query := `
		UPDATE links
		SET uses = uses + 1, object_id = ?, protected = ?
		WHERE token = ? AND uses < max_uses AND object_id = ''
	`

	result, err := s.db.ExecContext(ctx, query, objectID, boolInt(protected), token)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetLink(ctx, token); err != nil {
			return err
		}
		return ErrLinkExhausted
	}

	return nil
}

// ResetLink releases a consumed use and clears the binding
func (s *SQLiteStore) ResetLink(ctx context.Context, token string) error {
	query := `
		UPDATE links
		SET uses = MAX(uses - 1, 0), object_id = '', protected = 0
		WHERE token = ?
	`

	result, err := s.db.ExecContext(ctx, query, token)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ClearObject unbinds any link pointing at the object
func (s *SQLiteStore) ClearObject(ctx context.Context, objectID string) error {
	query := `
		UPDATE links
		SET uses = MAX(uses - 1, 0), object_id = '', protected = 0
		WHERE object_id = ?
	`

	_, err := s.db.ExecContext(ctx, query, objectID)
	return err
}

// DeleteLink deletes a link
func (s *SQLiteStore) DeleteLink(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE token = ?`, token)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteExpiredLinks deletes all expired links
func (s *SQLiteStore) DeleteExpiredLinks(ctx context.Context) (int64, error) {
	query := `DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at < ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// scanLink scans a link from a database row
func (s *SQLiteStore) scanLink(scanner interface {
	Scan(dest ...interface{}) error
}) (*Link, error) {
	var link Link
	var protected int
	var expiresAt sql.NullInt64
	var createdAt int64

	err := scanner.Scan(
		&link.Token,
		&link.Label,
		&link.Password,
		&link.MaxUses,
		&link.Uses,
		&link.ObjectID,
		&protected,
		&expiresAt,
		&createdAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	link.Protected = protected != 0
	link.CreatedAt = time.Unix(createdAt, 0).UTC()

	if expiresAt.Valid {
		expiry := time.Unix(expiresAt.Int64, 0).UTC()
		link.ExpiresAt = &expiry
	}

	return &link, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
