// Package blob abstracts the storage provider backing the snapshot store.
// Two providers exist: the local filesystem and Google Cloud Storage.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the key.
// Callers map this to a nil result rather than propagating an error.
var ErrNotFound = errors.New("blob: not found")

// Store is a flat key/value object store. Keys use forward slashes
// regardless of provider. Put must be atomic from a reader's perspective:
// a concurrent Get observes either the previous object or the new one,
// never a partial write.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the keys under prefix, lexicographically ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Append appends a line to an append-only log object, creating it if
	// absent. Used for the reconciliation config audit log.
	Append(ctx context.Context, key string, line []byte) error
	// Provider names the backend for error context ("local", "gcs").
	Provider() string
}
