// Package storage abstracts the byte store that holds project state documents
// and artifacts. Writes replace whole objects: a reader never observes a
// partially written object.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage is implemented by LocalStorage, SQLiteStorage and S3Storage. Paths
// are slash separated and relative to the backend root.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the object at path atomically.
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the objects directly under prefix. A missing prefix is
	// an empty list.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
