package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	Err2FARequired        = errors.New("two-factor code required")
	Err2FAInvalid         = errors.New("invalid two-factor code")
	ErrAPIKeyNotFound     = errors.New("api key not found")
)

// Token lifetimes and the session token types carried in JWT claims.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims of an admin session token.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// APIKey is a long-lived machine credential. Only its SHA-256 hash is
// stored; the plaintext is shown exactly once at creation.
type APIKey struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Prefix    string     `json:"prefix"`
	Hash      string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
}

// TOTPSetup contains the setup information for 2FA
type TOTPSetup struct {
	Secret string `json:"secret"`
	QRCode []byte `json:"qr_code"`
	URL    string `json:"url"`
}
