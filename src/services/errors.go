package services

import "errors"

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrKeyNotFound indicates the secret or key id resolves to nothing
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidInput indicates a schema or range violation in caller input
	ErrInvalidInput = errors.New("invalid input")

	// ErrAdminExists indicates the one-time setup flow already ran
	ErrAdminExists = errors.New("admin account already exists")

	// ErrInvalidCredentials indicates admin authentication failed
	ErrInvalidCredentials = errors.New("invalid credentials")
)
