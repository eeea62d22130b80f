package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrConflict is returned by PutIf when the stored value changed since it was read.
	ErrConflict = errors.New("storage: conditional write conflict")
)

// Store is a durable key-value store holding serialized records.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put unconditionally replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases the backend's resources.
	Close() error
}

// ConditionalStore is implemented by backends that can reject a write when
// another writer got there first. prev is the value observed by the caller;
// nil means the caller observed no value.
type ConditionalStore interface {
	Store
	PutIf(ctx context.Context, key string, prev, value []byte) error
}
