package object

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// textFileName is the on-disk name of the object's text body.
const textFileName = "text.txt"

// maxAllocAttempts bounds identifier allocation retries. With ~26^10
// possible identifiers, exhausting this bound signals a deeper fault.
const maxAllocAttempts = 5

// Manager owns the object lifecycle: identifier allocation, the per-object
// directory, and the record store. A record exists iff its directory has
// been materialized; multi-step operations compensate on failure rather
// than pretending the two stores share a transaction.
type Manager interface {
	// Allocate reserves a fresh identifier and creates its directory.
	Allocate(ctx context.Context) (string, error)
	// Create materializes the object under a previously allocated id.
	Create(ctx context.Context, params CreateParams) (*Object, error)
	// Get fetches a record, lazily purging it if expired.
	Get(ctx context.Context, id string) (*Object, error)
	// Verify checks existence, expiry and password, returning the record.
	Verify(ctx context.Context, id, passwordHash string) (*Object, error)
	// Open verifies, reads the text body, consumes autodestroy objects and
	// bumps the view counter.
	Open(ctx context.Context, id, passwordHash string) (*OpenResult, error)
	// AddFile registers a completed upload with the record.
	AddFile(ctx context.Context, id, filename string, size int64) error
	// Destroy verifies then removes both record and directory.
	Destroy(ctx context.Context, id, passwordHash string) error
	// Remove deletes record and directory without password verification.
	// Used by admin surfaces and the sweeper.
	Remove(ctx context.Context, id string) error
	// RemoveAll deletes every record and directory. Returns the record count.
	RemoveAll(ctx context.Context) (int64, error)
	// List returns all live records.
	List(ctx context.Context) ([]*Object, error)
	MarkReady(ctx context.Context, id string) error
	IsPending(ctx context.Context, id string) (bool, error)
	// Dir returns the object's directory path.
	Dir(id string) string
	// Root returns the files root that holds all object directories.
	Root() string
	Store() Store
}

type manager struct {
	store Store
	root  string // files root; one subdirectory per object id
}

// NewManager creates a new object manager rooted at the given files
// directory.
func NewManager(store Store, root string) (Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create files root: %w", err)
	}
	return &manager{store: store, root: root}, nil
}

func (m *manager) Dir(id string) string {
	return filepath.Join(m.root, id)
}

func (m *manager) Root() string {
	return m.root
}

func (m *manager) Store() Store {
	return m.store
}

// Allocate generates candidate identifiers until one is free in both the
// record store and the filesystem, then reserves it by creating the
// directory. Fails with ErrAllocationExhausted after a fixed bound.
func (m *manager) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		candidate, err := GenerateID()
		if err != nil {
			return "", err
		}

		if _, err := os.Stat(m.Dir(candidate)); err == nil {
			continue
		}
		exists, err := m.store.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check identifier: %w", err)
		}
		if exists {
			continue
		}

		if err := os.MkdirAll(m.Dir(candidate), 0755); err != nil {
			return "", fmt.Errorf("failed to create object directory: %w", err)
		}
		return candidate, nil
	}

	return "", ErrAllocationExhausted
}

// Create writes the text body and any inline files into the allocated
// directory, then inserts the record. Any failure after the directory was
// created removes the directory before returning, so a failed create never
// leaves an orphaned directory behind.
func (m *manager) Create(ctx context.Context, params CreateParams) (*Object, error) {
	dir := m.Dir(params.ID)

	obj, err := m.create(ctx, dir, params)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return obj, nil
}

func (m *manager) create(ctx context.Context, dir string, params CreateParams) (*Object, error) {
	text := strings.TrimSpace(params.Text)
	if err := os.WriteFile(filepath.Join(dir, textFileName), []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("failed to write text body: %w", err)
	}

	var files []FileEntry
	for _, inline := range params.InlineFiles {
		filename, err := SanitizeFilename(inline.Filename)
		if err != nil {
			continue // skip unusable names, matching inline upload semantics
		}
		size, err := m.streamToFile(filepath.Join(dir, filename), inline.Data, params.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, filename)
		}
		files = append(files, FileEntry{Filename: filename, Size: size})
	}

	totalSize := int64(len(text))
	for _, f := range files {
		totalSize += f.Size
	}

	obj := &Object{
		ID:           params.ID,
		PasswordHash: params.PasswordHash,
		Created:      time.Now().UTC().Truncate(time.Second),
		Retention:    params.Retention,
		Files:        files,
		Autodestroy:  params.Autodestroy,
		HasText:      text != "",
		FileCount:    len(files),
		TotalSize:    totalSize,
		Pending:      params.Pending,
	}
	if obj.Files == nil {
		obj.Files = []FileEntry{}
	}

	if err := m.store.Insert(ctx, obj); err != nil {
		return nil, fmt.Errorf("failed to insert object record: %w", err)
	}

	return obj, nil
}

// streamToFile copies data to path, enforcing the per-file byte cap while
// streaming. The whole create is rolled back by the caller on overflow.
func (m *manager) streamToFile(path string, data io.Reader, maxSize int64) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	var written int64
	buf := make([]byte, 1<<20)
	for {
		n, rerr := data.Read(buf)
		if n > 0 {
			if maxSize > 0 && written+int64(n) > maxSize {
				return 0, ErrFileTooLarge
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return 0, fmt.Errorf("failed to write file: %w", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, fmt.Errorf("failed to read upload: %w", rerr)
		}
	}

	return written, nil
}

// Get fetches a record and performs the lazy expiry check: an expired
// record is purged inline (record first, then directory) and reported as
// not found. This guarantees correctness for readers racing ahead of the
// sweep.
func (m *manager) Get(ctx context.Context, id string) (*Object, error) {
	obj, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if obj.Expired(time.Now().UTC()) {
		if err := m.store.Delete(ctx, id); err != nil {
			logrus.WithError(err).WithField("id", id).Warn("Failed to purge expired object record")
		}
		if err := os.RemoveAll(m.Dir(id)); err != nil {
			logrus.WithError(err).WithField("id", id).Warn("Failed to remove expired object directory")
		}
		return nil, ErrNotFound
	}

	return obj, nil
}

// Verify checks existence, lazy expiry and the password. passwordHash is
// the hashed attempt, empty when the client supplied none.
func (m *manager) Verify(ctx context.Context, id, passwordHash string) (*Object, error) {
	obj, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if obj.HasPassword() {
		if passwordHash == "" {
			return nil, ErrPasswordRequired
		}
		if passwordHash != obj.PasswordHash {
			return nil, ErrPasswordMismatch
		}
	}

	return obj, nil
}

// Open returns the text body and file listing. Autodestroy objects are
// marked consumed before returning, so a crash mid-response still leaves
// the object unopenable. Deletion of consumed objects is the sweeper's job.
func (m *manager) Open(ctx context.Context, id, passwordHash string) (*OpenResult, error) {
	obj, err := m.Verify(ctx, id, passwordHash)
	if err != nil {
		return nil, err
	}

	if obj.Consumed {
		return nil, ErrNotFound
	}

	var text string
	raw, err := os.ReadFile(filepath.Join(m.Dir(id), textFileName))
	if err == nil {
		text = string(raw)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read text body: %w", err)
	}

	if obj.Autodestroy {
		if err := m.store.MarkConsumed(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to mark object consumed: %w", err)
		}
		obj.Consumed = true
	}

	views, err := m.store.IncrementViews(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to increment views: %w", err)
	}
	obj.Views = views

	remaining := int64(time.Until(obj.ExpiresAt()).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	return &OpenResult{Object: obj, Text: text, Remaining: remaining, Views: views}, nil
}

// AddFile is the append-only registration path used when an upload
// completes. Fails with ErrNotFound if the record vanished mid-upload.
func (m *manager) AddFile(ctx context.Context, id, filename string, size int64) error {
	return m.store.AddFile(ctx, id, filename, size)
}

// Destroy verifies credentials then removes the record and the directory.
// Record deletion comes first: its absence is the authoritative signal that
// the object is gone, and a leftover directory is the sweeper's problem.
func (m *manager) Destroy(ctx context.Context, id, passwordHash string) error {
	if _, err := m.Verify(ctx, id, passwordHash); err != nil {
		return err
	}
	return m.Remove(ctx, id)
}

func (m *manager) Remove(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete object record: %w", err)
	}
	if err := os.RemoveAll(m.Dir(id)); err != nil {
		return fmt.Errorf("failed to remove object directory: %w", err)
	}
	return nil
}

func (m *manager) RemoveAll(ctx context.Context) (int64, error) {
	deleted, err := m.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return deleted, fmt.Errorf("failed to read files root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			logrus.WithError(err).WithField("dir", entry.Name()).Warn("Failed to remove object directory")
		}
	}

	return deleted, nil
}

func (m *manager) List(ctx context.Context) ([]*Object, error) {
	return m.store.List(ctx, time.Now().UTC())
}

func (m *manager) MarkReady(ctx context.Context, id string) error {
	return m.store.MarkReady(ctx, id)
}

func (m *manager) IsPending(ctx context.Context, id string) (bool, error) {
	return m.store.IsPending(ctx, id)
}
