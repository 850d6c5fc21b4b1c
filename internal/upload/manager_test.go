package upload

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sealbox/sealbox/internal/object"
)

func newTestManager(t *testing.T) (Manager, object.Manager) {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := object.NewSQLiteStore(db)
	require.NoError(t, err)
	objects, err := object.NewManager(store, filepath.Join(dir, "files"))
	require.NoError(t, err)

	return NewManager(objects), objects
}

func newTestObject(t *testing.T, objects object.Manager) string {
	t.Helper()

	ctx := context.Background()
	id, err := objects.Allocate(ctx)
	require.NoError(t, err)
	_, err = objects.Create(ctx, object.CreateParams{ID: id, Text: "body", Retention: 3600})
	require.NoError(t, err)
	return id
}

func TestUploadLifecycle(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "data.bin")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "data.bin", session.Filename)

	session, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("hello "), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), session.TotalSize)
	assert.Equal(t, 1, session.Parts)

	session, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("world"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), session.TotalSize)
	assert.Equal(t, 2, session.Parts)

	_, err = mgr.Complete(ctx, id, session.ID, false)
	require.NoError(t, err)

	// parts were appended in order onto the destination file
	raw, err := os.ReadFile(filepath.Join(objects.Dir(id), "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))

	// the file is registered with the object record
	obj, err := objects.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, obj.Files, 1)
	assert.Equal(t, object.FileEntry{Filename: "data.bin", Size: 11}, obj.Files[0])

	// the session directory is gone
	_, statErr := os.Stat(filepath.Join(objects.Dir(id), SessionDirPrefix+session.ID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUploadStartSanitizesFilename(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "passwd", session.Filename)

	_, err = mgr.Start(ctx, id, "..")
	assert.ErrorIs(t, err, object.ErrInvalidFilename)
}

func TestUploadStartUnknownObject(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Start(context.Background(), "zzz-zzzz-zzz", "data.bin")
	assert.ErrorIs(t, err, object.ErrNotFound)
}

func TestUploadPartCap(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "data.bin")
	require.NoError(t, err)

	_, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("12345678"), 10)
	require.NoError(t, err)

	// the next part crosses the cumulative cap
	_, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("overflow"), 10)
	assert.ErrorIs(t, err, object.ErrFileTooLarge)

	// the oversize part is rolled back but the session stays usable
	info, err := os.Stat(filepath.Join(objects.Dir(id), "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size())

	got, err := mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("xy"), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalSize)

	// an explicit abort still works after the rejected part
	session2, err := mgr.Start(ctx, id, "other.bin")
	require.NoError(t, err)
	_, err = mgr.ReceivePart(ctx, id, session2.ID, strings.NewReader("overflow!!!"), 10)
	assert.ErrorIs(t, err, object.ErrFileTooLarge)
	require.NoError(t, mgr.Abort(ctx, id, session2.ID))
}

func TestUploadCompleteEmpty(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "data.bin")
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, id, session.ID, false)
	assert.ErrorIs(t, err, ErrEmptyUpload)
}

func TestUploadCompleteFinalize(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()

	oid, err := objects.Allocate(ctx)
	require.NoError(t, err)
	_, err = objects.Create(ctx, object.CreateParams{ID: oid, Retention: 3600, Pending: true})
	require.NoError(t, err)

	session, err := mgr.Start(ctx, oid, "data.bin")
	require.NoError(t, err)
	_, err = mgr.ReceivePart(ctx, oid, session.ID, strings.NewReader("payload"), 0)
	require.NoError(t, err)
	_, err = mgr.Complete(ctx, oid, session.ID, true)
	require.NoError(t, err)

	pending, err := objects.IsPending(ctx, oid)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestUploadAbort(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "data.bin")
	require.NoError(t, err)
	_, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("partial"), 0)
	require.NoError(t, err)

	require.NoError(t, mgr.Abort(ctx, id, session.ID))

	_, statErr := os.Stat(filepath.Join(objects.Dir(id), "data.bin"))
	assert.True(t, os.IsNotExist(statErr))
	assert.ErrorIs(t, mgr.Abort(ctx, id, session.ID), ErrSessionNotFound)
}

func TestUploadExpiredSession(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	session, err := mgr.Start(ctx, id, "data.bin")
	require.NoError(t, err)

	backdateSession(t, objects, id, session.ID)

	_, err = mgr.ReceivePart(ctx, id, session.ID, strings.NewReader("late"), 0)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestUploadPurgeStale(t *testing.T) {
	mgr, objects := newTestManager(t)
	ctx := context.Background()
	id := newTestObject(t, objects)

	stale, err := mgr.Start(ctx, id, "stale.bin")
	require.NoError(t, err)
	_, err = mgr.ReceivePart(ctx, id, stale.ID, strings.NewReader("0123456789"), 0)
	require.NoError(t, err)
	backdateSession(t, objects, id, stale.ID)

	live, err := mgr.Start(ctx, id, "live.bin")
	require.NoError(t, err)

	// a corrupt session counts as stale too
	corruptDir := filepath.Join(objects.Dir(id), SessionDirPrefix+"broken")
	require.NoError(t, os.MkdirAll(corruptDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(corruptDir, "meta.json"), []byte("{nope"), 0644))

	removed, reclaimed, err := mgr.PurgeStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.GreaterOrEqual(t, reclaimed, int64(10))

	// the live session survived
	_, err = mgr.ReceivePart(ctx, id, live.ID, strings.NewReader("ok"), 0)
	assert.NoError(t, err)
}

// backdateSession rewrites a session's last_active past the TTL.
func backdateSession(t *testing.T, objects object.Manager, objectID, sessionID string) {
	t.Helper()

	path := filepath.Join(objects.Dir(objectID), SessionDirPrefix+sessionID, "meta.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var session Session
	require.NoError(t, json.Unmarshal(raw, &session))
	session.LastActive = time.Now().UTC().Add(-SessionTTL - time.Minute)

	raw, err = json.Marshal(session)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0644))
}
