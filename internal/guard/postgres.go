package guard

import (
	"context"
	"fmt"
)

// KeyStore is the slice of the storage layer the Postgres guard needs.
type KeyStore interface {
	// InsertIdempotencyKey records key and reports whether the insert won
	// (false when the key already existed).
	InsertIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// Postgres is a durable guard backing on the shared relational store.
// Atomicity comes from the unique key constraint: concurrent inserts of
// the same key commit exactly one row.
type Postgres struct {
	store KeyStore
}

// NewPostgres wraps a key store.
func NewPostgres(store KeyStore) *Postgres {
	return &Postgres{store: store}
}

// Admit implements Guard.
func (g *Postgres) Admit(ctx context.Context, key string) (bool, error) {
	inserted, err := g.store.InsertIdempotencyKey(ctx, key)
	if err != nil {
		return false, fmt.Errorf("guard: postgres admit: %w", err)
	}
	return inserted, nil
}

// Close implements Guard. The underlying pool belongs to the storage
// layer and is closed there.
func (g *Postgres) Close() error { return nil }
