package object

import (
	"io"
	"time"
)

// FileEntry describes one stored file inside an object, persisted both as a
// row inside the object record and as a file under the object's directory.
type FileEntry struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Object represents one ephemeral text+files bundle.
type Object struct {
	ID           string      `json:"id"`
	PasswordHash string      `json:"-"` // empty means passwordless
	Created      time.Time   `json:"created"`
	Retention    int64       `json:"retention"` // seconds
	Files        []FileEntry `json:"files"`
	Autodestroy  bool        `json:"autodestroy"`
	Consumed     bool        `json:"consumed"`
	HasText      bool        `json:"has_text"`
	FileCount    int         `json:"file_count"`
	TotalSize    int64       `json:"total_size"`
	Views        int64       `json:"views"`
	Pending      bool        `json:"pending"`
}

// ExpiresAt returns the instant after which the object is logically absent.
func (o *Object) ExpiresAt() time.Time {
	return o.Created.Add(time.Duration(o.Retention) * time.Second)
}

// Expired reports whether the object is past its retention at the given time.
func (o *Object) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt())
}

// HasPassword reports whether the object is password-protected.
func (o *Object) HasPassword() bool {
	return o.PasswordHash != ""
}

// File returns the file entry with the given name, or nil.
func (o *Object) File(filename string) *FileEntry {
	for i := range o.Files {
		if o.Files[i].Filename == filename {
			return &o.Files[i]
		}
	}
	return nil
}

// CreateParams carries everything needed to materialize a new object under a
// previously allocated identifier.
type CreateParams struct {
	ID           string
	PasswordHash string
	Retention    int64 // seconds
	Text         string
	InlineFiles  []InlineFile
	Autodestroy  bool
	Pending      bool
	MaxFileSize  int64
}

// InlineFile is a file received inline with the create request and streamed
// to disk without buffering.
type InlineFile struct {
	Filename string
	Data     io.Reader
}

// OpenResult is the outcome of a successful open.
type OpenResult struct {
	Object    *Object
	Text      string
	Remaining int64 // seconds until expiry
	Views     int64
}
