package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID()
		require.NoError(t, err)
		assert.True(t, ValidID(id), "generated id %q should match the pattern", id)
		assert.False(t, seen[id], "generated id %q repeated", id)
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"well formed", "abc-defg-hij", true},
		{"uppercase", "ABC-defg-hij", false},
		{"digits", "ab1-defg-hij", false},
		{"wrong group lengths", "abcd-efg-hij", false},
		{"missing group", "abc-defg", false},
		{"empty", "", false},
		{"path traversal", "../-conf-ig.", false},
		{"trailing garbage", "abc-defg-hijx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidID(tt.id))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "report.pdf", "report.pdf", false},
		{"strips unix path", "/etc/passwd", "passwd", false},
		{"strips windows path", `C:\Users\x\doc.txt`, "doc.txt", false},
		{"dot", ".", "", true},
		{"dotdot", "..", "", true},
		{"empty", "", "", true},
		{"only separators", "///", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFilename(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
