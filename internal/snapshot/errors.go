package snapshot

import (
	"errors"
	"fmt"

	"github.com/clubmetrics/districtsync/internal/blob"
)

// StorageError wraps a storage-layer failure with the operation and
// provider it occurred on. Not-found is never wrapped into a StorageError;
// it maps to a nil result at the store boundary.
type StorageError struct {
	Op       string
	Provider string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("snapshot store: %s (%s): %v", e.Op, e.Provider, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err unless it is nil or the not-found sentinel.
func (s *Store) storageErr(op string, err error) error {
	if err == nil || errors.Is(err, blob.ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Provider: s.blobs.Provider(), Err: err}
}
