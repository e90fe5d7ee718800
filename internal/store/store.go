package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by SelectValue when the key has no row.
// Absence is an outcome, not a store failure: any other error from this
// package means the store itself misbehaved.
var ErrNotFound = errors.New("key not found")

// Store is the three-operation contract against the durable store.
// All implementations must be safe for concurrent use.
type Store interface {
	// SelectValue returns the value for key, or ErrNotFound.
	SelectValue(ctx context.Context, key int64) ([]byte, error)

	// Upsert inserts the pair or overwrites the existing value.
	Upsert(ctx context.Context, key int64, value []byte) error

	// Delete removes the row for key and reports how many rows the
	// store actually deleted (0 when the key was absent).
	Delete(ctx context.Context, key int64) (int64, error)
}
