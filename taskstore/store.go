// Package taskstore provides a keyed durable store for task checkpoints.
//
// Keys are task identifiers; values are opaque serialized checkpoint
// bytes. The package includes a file-backed implementation (one JSON
// document per task), a BadgerDB-backed implementation for embedded
// production use, and an in-memory implementation for tests.
package taskstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a task id does not exist in the store.
var ErrNotFound = errors.New("taskstore: not found")

// Store is the interface for a keyed checkpoint store.
type Store interface {
	// Save stores data under taskID, overwriting any existing value.
	Save(ctx context.Context, taskID string, data []byte) error

	// Load retrieves the data for taskID. Returns ErrNotFound if absent.
	Load(ctx context.Context, taskID string) ([]byte, error)

	// Delete removes a task. No error if the task does not exist.
	Delete(ctx context.Context, taskID string) error

	// List returns all stored task ids in lexicographic order.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
