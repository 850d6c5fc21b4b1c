package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/internal/object"
)

const (
	// SessionDirPrefix marks session directories inside an object directory.
	// The leading underscore keeps them out of the identifier namespace.
	SessionDirPrefix = "_upload_"

	metaFileName = "meta.json"

	// SessionTTL is the inactivity window after which a session is stale.
	SessionTTL = 600 * time.Second
)

// Session is the persisted state of one chunked upload. It lives as
// meta.json inside the session directory; the received bytes are appended
// straight onto the destination file, so the session directory itself
// never holds part payloads.
type Session struct {
	ID         string    `json:"-"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	TotalSize  int64     `json:"total_size"`
	Parts      int       `json:"parts"`
}

// Expired reports whether the session has been inactive past the TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastActive) > SessionTTL
}

// Manager drives chunked uploads into object directories.
type Manager interface {
	// Start opens a session for one destination file of an object.
	Start(ctx context.Context, objectID, filename string) (*Session, error)
	// ReceivePart appends a chunk to the destination file. maxFileSize of 0
	// disables the cap.
	ReceivePart(ctx context.Context, objectID, sessionID string, data io.Reader, maxFileSize int64) (*Session, error)
	// Complete validates the received bytes and registers the file with the
	// object record. finalize additionally marks the object ready.
	Complete(ctx context.Context, objectID, sessionID string, finalize bool) (*Session, error)
	// Abort discards the session and whatever was appended so far.
	Abort(ctx context.Context, objectID, sessionID string) error
	// PurgeStale removes stale or corrupt sessions across all objects,
	// returning the session count and bytes reclaimed.
	PurgeStale(ctx context.Context) (int, int64, error)
}

type manager struct {
	objects object.Manager
	mu      sync.Mutex // serializes meta.json read-modify-write cycles
}

// NewManager creates an upload manager over the given object manager.
func NewManager(objects object.Manager) Manager {
	return &manager{objects: objects}
}

func (m *manager) sessionDir(objectID, sessionID string) string {
	return filepath.Join(m.objects.Dir(objectID), SessionDirPrefix+sessionID)
}

func (m *manager) metaPath(objectID, sessionID string) string {
	return filepath.Join(m.sessionDir(objectID, sessionID), metaFileName)
}

func (m *manager) Start(ctx context.Context, objectID, filename string) (*Session, error) {
	obj, err := m.objects.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}

	clean, err := object.SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:         uuid.NewString(),
		Filename:   clean,
		CreatedAt:  time.Now().UTC(),
		LastActive: time.Now().UTC(),
	}

	dir := m.sessionDir(obj.ID, session.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeMeta(obj.ID, session); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	// Truncate the destination up front so a restarted upload of the same
	// filename never appends onto a previous attempt.
	target := filepath.Join(m.objects.Dir(obj.ID), clean)
	if err := os.WriteFile(target, nil, 0644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"object":   obj.ID,
		"session":  session.ID,
		"filename": clean,
	}).Debug("Upload session started")

	return session, nil
}

func (m *manager) ReceivePart(ctx context.Context, objectID, sessionID string, data io.Reader, maxFileSize int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.loadMeta(objectID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		m.discard(objectID, session)
		return nil, ErrSessionExpired
	}

	target := filepath.Join(m.objects.Dir(objectID), session.Filename)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination file: %w", err)
	}

	written, copyErr := m.appendCapped(out, data, session.TotalSize, maxFileSize)
	out.Close()
	if copyErr != nil {
		// An oversize part rejects only the part: the target is rolled
		// back to its pre-part size and the session stays usable, the
		// caller decides whether to abort.
		if errors.Is(copyErr, object.ErrFileTooLarge) {
			os.Truncate(target, session.TotalSize)
			return nil, copyErr
		}
		m.discard(objectID, session)
		return nil, copyErr
	}

	session.TotalSize += written
	session.Parts++
	session.LastActive = time.Now().UTC()
	if err := m.writeMeta(objectID, session); err != nil {
		return nil, err
	}

	return session, nil
}

// appendCapped streams data onto out, failing once already+new exceeds the cap.
func (m *manager) appendCapped(out io.Writer, data io.Reader, already, maxFileSize int64) (int64, error) {
	var written int64
	buf := make([]byte, 1<<20)
	for {
		n, rerr := data.Read(buf)
		if n > 0 {
			if maxFileSize > 0 && already+written+int64(n) > maxFileSize {
				return written, object.ErrFileTooLarge
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to append part: %w", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("failed to read part: %w", rerr)
		}
	}
}

func (m *manager) Complete(ctx context.Context, objectID, sessionID string, finalize bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.loadMeta(objectID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		m.discard(objectID, session)
		return nil, ErrSessionExpired
	}
	if session.TotalSize == 0 {
		m.discard(objectID, session)
		return nil, ErrEmptyUpload
	}

	if err := m.objects.AddFile(ctx, objectID, session.Filename, session.TotalSize); err != nil {
		m.discard(objectID, session)
		return nil, err
	}
	if finalize {
		if err := m.objects.MarkReady(ctx, objectID); err != nil {
			return nil, err
		}
	}

	if err := os.RemoveAll(m.sessionDir(objectID, sessionID)); err != nil {
		logrus.WithError(err).WithField("session", sessionID).Warn("Failed to remove session directory")
	}

	logrus.WithFields(logrus.Fields{
		"object":   objectID,
		"session":  sessionID,
		"filename": session.Filename,
		"size":     session.TotalSize,
		"parts":    session.Parts,
	}).Debug("Upload session completed")

	return session, nil
}

func (m *manager) Abort(ctx context.Context, objectID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.loadMeta(objectID, sessionID)
	if err != nil {
		return err
	}
	m.discard(objectID, session)
	return nil
}

// discard removes the partially written destination file and the session
// directory. Callers hold the mutex.
func (m *manager) discard(objectID string, session *Session) {
	if session.Filename != "" {
		os.Remove(filepath.Join(m.objects.Dir(objectID), session.Filename))
	}
	os.RemoveAll(m.sessionDir(objectID, session.ID))
}

func (m *manager) writeMeta(objectID string, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}
	if err := os.WriteFile(m.metaPath(objectID, session.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	return nil
}

func (m *manager) loadMeta(objectID, sessionID string) (*Session, error) {
	raw, err := os.ReadFile(m.metaPath(objectID, sessionID))
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	session.ID = sessionID
	return &session, nil
}

// PurgeStale walks every object directory and removes session directories
// whose metadata is missing, corrupt, or past the inactivity window. The
// destination file of a stale session is removed with it.
func (m *manager) PurgeStale(ctx context.Context) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.objects.Root()
	objects, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read files root: %w", err)
	}

	now := time.Now().UTC()
	var removed int
	var reclaimed int64
	for _, objDir := range objects {
		if !objDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, objDir.Name()))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasPrefix(entry.Name(), SessionDirPrefix) {
				continue
			}
			sessionID := strings.TrimPrefix(entry.Name(), SessionDirPrefix)
			session, err := m.loadMeta(objDir.Name(), sessionID)
			if err != nil {
				// missing or corrupt metadata reads as stale
				reclaimed += dirSize(filepath.Join(root, objDir.Name(), entry.Name()))
				os.RemoveAll(filepath.Join(root, objDir.Name(), entry.Name()))
				removed++
				continue
			}
			if session.Expired(now) {
				reclaimed += session.TotalSize
				m.discard(objDir.Name(), session)
				removed++
			}
		}
	}

	return removed, reclaimed, nil
}

func dirSize(dir string) int64 {
	var total int64
	filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
