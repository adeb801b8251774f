package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")
)

// StorageError wraps a failure of the backing store. Callers surface it as a 5xx.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err was caused by the backing store
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
