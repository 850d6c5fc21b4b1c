package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const apiKeyPrefix = "sb_"

// Manager owns the admin credential, session tokens, 2FA and API keys.
// There is a single admin identity; multi-user account management is out
// of scope.
type Manager struct {
	store  *store
	secret []byte
	issuer string
}

// NewManager creates an auth manager. adminPassword seeds the credential
// row on first run only; later password changes go through the store.
func NewManager(db *sql.DB, jwtSecret, adminPassword, issuer string) (*Manager, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	store, err := newStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth store: %w", err)
	}

	m := &Manager{
		store:  store,
		secret: []byte(jwtSecret),
		issuer: issuer,
	}

	if adminPassword != "" {
		hash, err := HashAdminPassword(adminPassword)
		if err != nil {
			return nil, err
		}
		if err := store.seedPassword(context.Background(), hash); err != nil {
			return nil, fmt.Errorf("failed to seed admin credential: %w", err)
		}
	}

	return m, nil
}

// Login verifies the admin password (and TOTP code when 2FA is enabled)
// and mints a token pair.
func (m *Manager) Login(ctx context.Context, password, otpCode string) (*TokenPair, error) {
	hash, err := m.store.passwordHash(ctx)
	if err != nil {
		return nil, err
	}
	if !VerifyAdminPassword(hash, password) {
		logrus.Warn("Failed admin login attempt")
		return nil, ErrInvalidCredentials
	}

	secret, enabled, err := m.store.totpState(ctx)
	if err != nil {
		return nil, err
	}
	if enabled {
		if otpCode == "" {
			return nil, Err2FARequired
		}
		if !VerifyTOTPCode(secret, otpCode) {
			return nil, Err2FAInvalid
		}
	}

	return m.mintPair()
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return m.mintPair()
}

// ChangePassword rotates the admin password after verifying the current one.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	hash, err := m.store.passwordHash(ctx)
	if err != nil {
		return err
	}
	if !VerifyAdminPassword(hash, current) {
		return ErrInvalidCredentials
	}

	newHash, err := HashAdminPassword(next)
	if err != nil {
		return err
	}
	if err := m.store.setPasswordHash(ctx, newHash); err != nil {
		return fmt.Errorf("failed to update admin credential: %w", err)
	}

	logrus.Info("Admin password changed")
	return nil
}

// ValidateAccess checks an access token.
func (m *Manager) ValidateAccess(tokenString string) error {
	claims, err := m.parseToken(tokenString)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeAccess {
		return ErrInvalidToken
	}
	return nil
}

// Authenticated reports whether the request carries a valid admin
// credential: a bearer access token or an API key.
func (m *Manager) Authenticated(r *http.Request) bool {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		if m.ValidateAccess(token) == nil {
			return true
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		if _, err := m.VerifyAPIKey(r.Context(), key); err == nil {
			return true
		}
	}

	return false
}

// Setup2FA generates a fresh TOTP secret and stores it disabled. The
// admin confirms with Enable2FA once their authenticator is provisioned.
func (m *Manager) Setup2FA(ctx context.Context) (*TOTPSetup, error) {
	setup, err := Generate2FASecret("admin", m.issuer)
	if err != nil {
		return nil, err
	}
	if err := m.store.setTOTP(ctx, setup.Secret, false); err != nil {
		return nil, fmt.Errorf("failed to store 2FA secret: %w", err)
	}
	return setup, nil
}

// Enable2FA activates 2FA after the admin proves possession of the secret.
func (m *Manager) Enable2FA(ctx context.Context, code string) error {
	secret, _, err := m.store.totpState(ctx)
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("2FA has not been set up")
	}
	if !VerifyTOTPCode(secret, code) {
		return Err2FAInvalid
	}

	if err := m.store.setTOTP(ctx, secret, true); err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	logrus.Info("Two-factor authentication enabled")
	return nil
}

// Disable2FA turns 2FA off after verifying a current code.
func (m *Manager) Disable2FA(ctx context.Context, code string) error {
	secret, enabled, err := m.store.totpState(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	if !VerifyTOTPCode(secret, code) {
		return Err2FAInvalid
	}

	if err := m.store.setTOTP(ctx, "", false); err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	logrus.Info("Two-factor authentication disabled")
	return nil
}

// TwoFAEnabled reports whether 2FA is active.
func (m *Manager) TwoFAEnabled(ctx context.Context) (bool, error) {
	_, enabled, err := m.store.totpState(ctx)
	return enabled, err
}

// CreateAPIKey mints a new API key. The returned plaintext is the only
// copy; the store keeps a SHA-256 hash.
func (m *Manager) CreateAPIKey(ctx context.Context, label string) (*APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate api key: %w", err)
	}
	plaintext := apiKeyPrefix + hex.EncodeToString(raw)

	key := &APIKey{
		ID:        generateKeyID(),
		Label:     label,
		Prefix:    plaintext[:len(apiKeyPrefix)+8],
		Hash:      hashAPIKey(plaintext),
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.createAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("failed to store api key: %w", err)
	}

	logrus.WithField("key_id", key.ID).Info("API key created")
	return key, plaintext, nil
}

// ListAPIKeys returns all API keys, newest first.
func (m *Manager) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	return m.store.listAPIKeys(ctx)
}

// DeleteAPIKey revokes an API key.
func (m *Manager) DeleteAPIKey(ctx context.Context, id string) error {
	return m.store.deleteAPIKey(ctx, id)
}

// VerifyAPIKey checks a plaintext API key and records its use.
func (m *Manager) VerifyAPIKey(ctx context.Context, plaintext string) (*APIKey, error) {
	key, err := m.store.apiKeyByHash(ctx, hashAPIKey(plaintext))
	if err != nil {
		return nil, err
	}

	if err := m.store.touchAPIKey(ctx, key.ID); err != nil {
		logrus.WithError(err).WithField("key_id", key.ID).Warn("Failed to record api key use")
	}

	return key, nil
}

func (m *Manager) mintPair() (*TokenPair, error) {
	access, err := m.mintToken(TokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.mintToken(TokenTypeRefresh, RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
	}, nil
}

func (m *Manager) mintToken(tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func hashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func generateKeyID() string {
	raw := make([]byte, 16)
	rand.Read(raw)
	return hex.EncodeToString(raw)
}
