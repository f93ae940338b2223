package db

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is wrapped by backends when the underlying storage
// rejects a write for lack of space.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// StorageLimitError means the serialized collection is larger than the
// configured ceiling. Nothing was written.
type StorageLimitError struct {
	Size  int
	Limit int
}

func (e *StorageLimitError) Error() string {
	return fmt.Sprintf("serialized tasks are %d bytes, limit is %d", e.Size, e.Limit)
}

// StorageQuotaError means the backend ran out of space while writing.
type StorageQuotaError struct {
	Key string
	Err error
}

func (e *StorageQuotaError) Error() string {
	return fmt.Sprintf("write %q: %v", e.Key, e.Err)
}

func (e *StorageQuotaError) Unwrap() error {
	return e.Err
}

type StorageWriteError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// StorageReadError is only logged; loads degrade to an empty collection.
type StorageReadError struct {
	Key string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("read %q: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error {
	return e.Err
}
