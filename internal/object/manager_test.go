package object

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	mgr, err := NewManager(store, filepath.Join(dir, "files"))
	require.NoError(t, err)
	return mgr
}

func createObject(t *testing.T, mgr Manager, params CreateParams) *Object {
	t.Helper()

	id, err := mgr.Allocate(context.Background())
	require.NoError(t, err)
	params.ID = id

	obj, err := mgr.Create(context.Background(), params)
	require.NoError(t, err)
	return obj
}

func TestManagerAllocate(t *testing.T) {
	mgr := newTestManager(t)

	id, err := mgr.Allocate(context.Background())
	require.NoError(t, err)
	assert.True(t, ValidID(id))

	info, err := os.Stat(mgr.Dir(id))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestManagerCreateAndOpen(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{
		Text:      "  hello world  ",
		Retention: 3600,
	})
	assert.True(t, obj.HasText)
	assert.Equal(t, int64(len("hello world")), obj.TotalSize)

	raw, err := os.ReadFile(filepath.Join(mgr.Dir(obj.ID), "text.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))

	result, err := mgr.Open(ctx, obj.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, int64(1), result.Views)
	assert.Greater(t, result.Remaining, int64(3590))

	result, err = mgr.Open(ctx, obj.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Views)
}

func TestManagerCreateInlineFiles(t *testing.T) {
	mgr := newTestManager(t)

	obj := createObject(t, mgr, CreateParams{
		Text:      "body",
		Retention: 3600,
		InlineFiles: []InlineFile{
			{Filename: "/tmp/../a.txt", Data: strings.NewReader("aaaa")},
			{Filename: "b.txt", Data: strings.NewReader("bb")},
		},
		MaxFileSize: 1024,
	})

	require.Len(t, obj.Files, 2)
	assert.Equal(t, FileEntry{Filename: "a.txt", Size: 4}, obj.Files[0])
	assert.Equal(t, FileEntry{Filename: "b.txt", Size: 2}, obj.Files[1])
	assert.Equal(t, int64(4+2+4), obj.TotalSize)

	raw, err := os.ReadFile(filepath.Join(mgr.Dir(obj.ID), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(raw))
}

func TestManagerCreateFileTooLarge(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Allocate(ctx)
	require.NoError(t, err)

	_, err = mgr.Create(ctx, CreateParams{
		ID:        id,
		Text:      "body",
		Retention: 3600,
		InlineFiles: []InlineFile{
			{Filename: "big.bin", Data: strings.NewReader(strings.Repeat("x", 100))},
		},
		MaxFileSize: 10,
	})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// the whole directory is rolled back, not just the oversized file
	_, statErr := os.Stat(mgr.Dir(id))
	assert.True(t, os.IsNotExist(statErr))
	_, getErr := mgr.Get(ctx, id)
	assert.ErrorIs(t, getErr, ErrNotFound)
}

func TestManagerLazyExpiry(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{Text: "soon gone", Retention: 60})

	// rewind the record so it reads as expired
	store := mgr.Store().(*SQLiteStore)
	_, err := store.db.Exec(`UPDATE objects SET created = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*time.Minute).Unix(), obj.ID)
	require.NoError(t, err)

	_, err = mgr.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// the lazy purge removed both the record and the directory
	_, statErr := os.Stat(mgr.Dir(obj.ID))
	assert.True(t, os.IsNotExist(statErr))
	exists, err := mgr.Store().Exists(ctx, obj.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManagerVerifyPassword(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{
		Text:         "secret",
		Retention:    3600,
		PasswordHash: "cafebabe",
	})

	_, err := mgr.Verify(ctx, obj.ID, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = mgr.Verify(ctx, obj.ID, "wrong")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	got, err := mgr.Verify(ctx, obj.ID, "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)
}

func TestManagerAutodestroy(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{
		Text:        "once",
		Retention:   3600,
		Autodestroy: true,
	})

	result, err := mgr.Open(ctx, obj.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "once", result.Text)
	assert.True(t, result.Object.Consumed)

	// second open reads as gone, indistinguishable from a missing object
	_, err = mgr.Open(ctx, obj.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// the record survives for the sweeper; verify still succeeds
	_, err = mgr.Verify(ctx, obj.ID, "")
	assert.NoError(t, err)
}

func TestManagerDestroy(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{
		Text:         "gone soon",
		Retention:    3600,
		PasswordHash: "cafebabe",
	})

	assert.ErrorIs(t, mgr.Destroy(ctx, obj.ID, "wrong"), ErrPasswordMismatch)

	require.NoError(t, mgr.Destroy(ctx, obj.ID, "cafebabe"))
	_, err := mgr.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(mgr.Dir(obj.ID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerRemoveAll(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	createObject(t, mgr, CreateParams{Text: "one", Retention: 3600})
	createObject(t, mgr, CreateParams{Text: "two", Retention: 3600})

	deleted, err := mgr.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	objs, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestManagerAddFile(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	obj := createObject(t, mgr, CreateParams{Text: "body", Retention: 3600})

	require.NoError(t, mgr.AddFile(ctx, obj.ID, "upload.bin", 512))

	got, err := mgr.Get(ctx, obj.ID)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, int64(512), got.Files[0].Size)
}
