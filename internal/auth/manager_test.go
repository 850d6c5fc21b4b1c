package auth

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr, err := NewManager(db, "test-secret", "hunter2", "sealbox-test")
	require.NoError(t, err)
	return mgr
}

func TestLogin(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	pair, err := mgr.Login(ctx, "hunter2", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	assert.NoError(t, mgr.ValidateAccess(pair.AccessToken))

	_, err = mgr.Login(ctx, "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	pair, err := mgr.Login(ctx, "hunter2", "")
	require.NoError(t, err)

	fresh, err := mgr.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NoError(t, mgr.ValidateAccess(fresh.AccessToken))

	// an access token is not accepted as a refresh token
	_, err = mgr.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = mgr.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessRejectsRefreshToken(t *testing.T) {
	mgr := newTestManager(t)

	pair, err := mgr.Login(context.Background(), "hunter2", "")
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.ValidateAccess(pair.RefreshToken), ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, mgr.ChangePassword(ctx, "wrong", "next"), ErrInvalidCredentials)

	require.NoError(t, mgr.ChangePassword(ctx, "hunter2", "correct horse"))

	_, err := mgr.Login(ctx, "hunter2", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = mgr.Login(ctx, "correct horse", "")
	assert.NoError(t, err)
}

func TestSeedPasswordOnce(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewManager(db, "test-secret", "first", "sealbox-test")
	require.NoError(t, err)

	// a second construction with a different password must not overwrite
	mgr, err := NewManager(db, "test-secret", "second", "sealbox-test")
	require.NoError(t, err)

	_, err = mgr.Login(context.Background(), "first", "")
	assert.NoError(t, err)
	_, err = mgr.Login(context.Background(), "second", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTwoFactorFlow(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	enabled, err := mgr.TwoFAEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	setup, err := mgr.Setup2FA(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.NotEmpty(t, setup.QRCode)

	// setup alone does not enforce 2FA
	_, err = mgr.Login(ctx, "hunter2", "")
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Enable2FA(ctx, "000000"), Err2FAInvalid)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, mgr.Enable2FA(ctx, code))

	// now a login without a code is refused
	_, err = mgr.Login(ctx, "hunter2", "")
	assert.ErrorIs(t, err, Err2FARequired)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = mgr.Login(ctx, "hunter2", code)
	assert.NoError(t, err)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, mgr.Disable2FA(ctx, code))

	_, err = mgr.Login(ctx, "hunter2", "")
	assert.NoError(t, err)
}

func TestAPIKeys(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	key, plaintext, err := mgr.CreateAPIKey(ctx, "ci job")
	require.NoError(t, err)
	assert.NotEmpty(t, key.ID)
	assert.Contains(t, plaintext, "sb_")
	assert.Equal(t, plaintext[:11], key.Prefix)

	verified, err := mgr.VerifyAPIKey(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, verified.ID)

	_, err = mgr.VerifyAPIKey(ctx, "sb_bogus")
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)

	keys, err := mgr.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ci job", keys[0].Label)

	require.NoError(t, mgr.DeleteAPIKey(ctx, key.ID))
	_, err = mgr.VerifyAPIKey(ctx, plaintext)
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
	assert.ErrorIs(t, mgr.DeleteAPIKey(ctx, key.ID), ErrAPIKeyNotFound)
}

func TestAuthenticated(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	pair, err := mgr.Login(ctx, "hunter2", "")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/settings", nil)
	assert.False(t, mgr.Authenticated(r))

	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	assert.True(t, mgr.Authenticated(r))

	r.Header.Set("Authorization", "Bearer nonsense")
	assert.False(t, mgr.Authenticated(r))

	_, plaintext, err := mgr.CreateAPIKey(ctx, "key")
	require.NoError(t, err)
	r = httptest.NewRequest("GET", "/api/settings", nil)
	r.Header.Set("X-API-Key", plaintext)
	assert.True(t, mgr.Authenticated(r))
}

func TestObjectPasswordHash(t *testing.T) {
	hash := HashObjectPassword("secret")
	assert.Len(t, hash, 128)
	assert.Equal(t, hash, HashObjectPassword("secret"))
	assert.NotEqual(t, hash, HashObjectPassword("Secret"))
}
