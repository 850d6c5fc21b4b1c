package upload

import "errors"

var (
	// ErrSessionNotFound indicates the upload session does not exist
	ErrSessionNotFound = errors.New("upload session does not exist")

	// ErrSessionExpired indicates the session exceeded its inactivity window
	ErrSessionExpired = errors.New("upload session has expired")

	// ErrEmptyUpload indicates completion was requested before any bytes arrived
	ErrEmptyUpload = errors.New("upload contains no data")
)
