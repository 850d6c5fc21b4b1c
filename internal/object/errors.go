package object

import "errors"

// Common object errors
var (
	ErrNotFound            = errors.New("object does not exist or has expired")
	ErrInvalidID           = errors.New("invalid object identifier format")
	ErrPasswordRequired    = errors.New("password required")
	ErrPasswordMismatch    = errors.New("incorrect password or the object does not exist")
	ErrAllocationExhausted = errors.New("failed to allocate a unique object identifier")
	ErrFileTooLarge        = errors.New("file exceeds maximum size")
	ErrInvalidFilename     = errors.New("invalid filename")
)
