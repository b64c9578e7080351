// Package store defines the key-value backend contract used by the key
// lifecycle and audit services: get/put/delete by key, lexicographic
// prefix listing with an opaque cursor, and an optional atomic
// transaction capability.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable wraps backend failures; always retryable
	ErrUnavailable = errors.New("storage unavailable")
)

// ListOptions selects a lexicographic key range. Keys strictly after
// Cursor and starting with Prefix are returned, at most Limit of them.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// ListResult is one page of keys. Cursor is the last key visited and is
// empty when the range is exhausted, so pages remain stable while new
// keys are appended ahead of the cursor.
type ListResult struct {
	Keys    []string
	Cursor  string
	HasMore bool
}

// Store is the key-value backend. Every call is a potential suspension
// point; implementations must honor the caller's context deadline.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// Tx batches writes that commit atomically
type Tx interface {
	Put(key string, value []byte) error
	Delete(key string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactional is the optional atomic multi-write capability. Callers
// type-assert and degrade to sequential best-effort writes when the
// backend does not support it.
type Transactional interface {
	Begin(ctx context.Context) (Tx, error)
}
