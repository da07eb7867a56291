package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("key not found")
	ErrClosed    = errors.New("store closed")
	ErrOpenStore = errors.New("failed to open store")
)
