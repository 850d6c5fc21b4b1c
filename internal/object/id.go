package object

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Object identifier format: xxx-xxxx-xxx (lowercase letters only).
var idPattern = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz"

var idGroups = []int{3, 4, 3}

// GenerateID returns a random identifier in the xxx-xxxx-xxx format.
func GenerateID() (string, error) {
	groups := make([]string, len(idGroups))
	for i, n := range idGroups {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for j, b := range buf {
			buf[j] = idAlphabet[int(b)%len(idAlphabet)]
		}
		groups[i] = string(buf)
	}
	return strings.Join(groups, "-"), nil
}

// ValidID reports whether id matches the identifier format. Callers must
// check this before using an id in a filesystem path.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// SanitizeFilename reduces name to a bare filename and rejects empty, "."
// and ".." results so it can never escape the object directory.
func SanitizeFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrInvalidFilename
	}
	return name, nil
}
