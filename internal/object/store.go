package object

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists object records. The record store is the authority on object
// existence: an object with no record is gone no matter what is on disk.
type Store interface {
	Insert(ctx context.Context, obj *Object) error
	Get(ctx context.Context, id string) (*Object, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, now time.Time) ([]*Object, error)
	AddFile(ctx context.Context, id, filename string, size int64) error
	MarkConsumed(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string) error
	IsPending(ctx context.Context, id string) (bool, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) ([]string, error)
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the objects table
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		id          TEXT PRIMARY KEY,
		password    TEXT,
		created     INTEGER NOT NULL,
		retention   INTEGER NOT NULL,
		files       TEXT    NOT NULL DEFAULT '[]',
		autodestroy INTEGER NOT NULL DEFAULT 0,
		consumed    INTEGER NOT NULL DEFAULT 0,
		has_text    INTEGER NOT NULL DEFAULT 0,
		file_count  INTEGER NOT NULL DEFAULT 0,
		total_size  INTEGER NOT NULL DEFAULT 0,
		views       INTEGER NOT NULL DEFAULT 0,
		pending     INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_objects_expiry ON objects(created, retention);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert creates a new object record. The unique-key constraint on id is the
// final arbiter against identifier collisions.
func (s *SQLiteStore) Insert(ctx context.Context, obj *Object) error {
	files, err := json.Marshal(obj.Files)
	if err != nil {
		return fmt.Errorf("failed to encode file list: %w", err)
	}

	var password interface{}
	if obj.PasswordHash != "" {
		password = obj.PasswordHash
	}

	query := `
		INSERT INTO objects
			(id, password, created, retention, files, autodestroy, consumed,
			 has_text, file_count, total_size, views, pending)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, 0, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		obj.ID,
		password,
		obj.Created.Unix(),
		obj.Retention,
		string(files),
		boolInt(obj.Autodestroy),
		boolInt(obj.HasText),
		len(obj.Files),
		obj.TotalSize,
		boolInt(obj.Pending),
	)

	return err
}

// Get retrieves a raw object record by id. Expiry is not checked here; the
// manager layers the lazy expiry check on top.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Object, error) {
	query := `
		SELECT id, password, created, retention, files, autodestroy, consumed,
		       has_text, file_count, total_size, views, pending
		FROM objects
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)
	return s.scanObject(row)
}

// Exists checks whether an object id is already in use.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all non-expired object records, newest first.
func (s *SQLiteStore) List(ctx context.Context, now time.Time) ([]*Object, error) {
	query := `
		SELECT id, password, created, retention, files, autodestroy, consumed,
		       has_text, file_count, total_size, views, pending
		FROM objects
		WHERE created + retention > ?
		ORDER BY created DESC
	`

	rows, err := s.db.QueryContext(ctx, query, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []*Object
	for rows.Next() {
		obj, err := s.scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	return objects, rows.Err()
}

// AddFile appends a file entry to an object's file list and updates the
// cached count and size totals.
func (s *SQLiteStore) AddFile(ctx context.Context, id, filename string, size int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rawFiles string
	var totalSize int64
	err = tx.QueryRowContext(ctx, `SELECT files, total_size FROM objects WHERE id = ?`, id).
		Scan(&rawFiles, &totalSize)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var files []FileEntry
	if err := json.Unmarshal([]byte(rawFiles), &files); err != nil {
		return fmt.Errorf("failed to decode file list: %w", err)
	}
	files = append(files, FileEntry{Filename: filename, Size: size})

	encoded, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to encode file list: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE objects SET files = ?, file_count = ?, total_size = ? WHERE id = ?`,
		string(encoded), len(files), totalSize+size, id,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// MarkConsumed flags an autodestroy object as opened.
func (s *SQLiteStore) MarkConsumed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE objects SET consumed = 1 WHERE id = ?`, id)
	return err
}

// MarkReady clears the pending flag, marking the object as fully created.
func (s *SQLiteStore) MarkReady(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE objects SET pending = 0 WHERE id = ?`, id)
	return err
}

// IsPending reports whether the object still has uploads in flight.
func (s *SQLiteStore) IsPending(ctx context.Context, id string) (bool, error) {
	var pending int
	err := s.db.QueryRowContext(ctx, `SELECT pending FROM objects WHERE id = ?`, id).Scan(&pending)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return pending != 0, nil
}

// IncrementViews bumps the view counter and returns the new count.
func (s *SQLiteStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE objects SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}

	var views int64
	err = s.db.QueryRowContext(ctx, `SELECT views FROM objects WHERE id = ?`, id).Scan(&views)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return views, nil
}

// Delete removes a single object record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	return err
}

// DeleteAll removes every object record. Returns the number of deleted rows.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM objects`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PurgeExpired deletes all expired records and returns their ids so callers
// can remove the matching directories.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM objects WHERE created + retention < ?`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// scanObject scans an object from a database row
func (s *SQLiteStore) scanObject(scanner interface {
	Scan(dest ...interface{}) error
}) (*Object, error) {
	var obj Object
	var password sql.NullString
	var created int64
	var rawFiles string
	var autodestroy, consumed, hasText, pending int

	err := scanner.Scan(
		&obj.ID,
		&password,
		&created,
		&obj.Retention,
		&rawFiles,
		&autodestroy,
		&consumed,
		&hasText,
		&obj.FileCount,
		&obj.TotalSize,
		&obj.Views,
		&pending,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan object: %w", err)
	}

	obj.PasswordHash = password.String
	obj.Created = time.Unix(created, 0).UTC()
	obj.Autodestroy = autodestroy != 0
	obj.Consumed = consumed != 0
	obj.HasText = hasText != 0
	obj.Pending = pending != 0

	if err := json.Unmarshal([]byte(rawFiles), &obj.Files); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}
	if obj.Files == nil {
		obj.Files = []FileEntry{}
	}

	return &obj, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
