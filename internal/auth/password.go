package auth

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashObjectPassword hashes an object password. Object passwords are
// compared by hash-string equality on every open, so a fast digest is
// used here; the admin password uses bcrypt instead.
func HashObjectPassword(plain string) string {
	sum := sha512.Sum512([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// HashAdminPassword hashes the admin password with bcrypt.
func HashAdminPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyAdminPassword compares a password attempt against the stored hash.
func VerifyAdminPassword(hash, attempt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(attempt)) == nil
}
