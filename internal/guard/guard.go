// Package guard implements the idempotency guard that deduplicates intake
// notifications. Admit is an atomic check-and-set: for any key, exactly one
// caller across the guard's lifetime sees true. Keys never expire.
package guard

import (
	"context"
	"sync"
	"time"
)

// Guard answers whether an idempotency key has been seen before.
type Guard interface {
	// Admit records key on first sight and reports whether this caller
	// won the insert. Two concurrent calls with the same key never both
	// get true.
	Admit(ctx context.Context, key string) (bool, error)
	// Close releases any backing resources.
	Close() error
}

// Memory is the in-process baseline backing: a mutex-protected map with
// process lifetime. First-seen timestamps are kept for diagnostics.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemory creates an empty in-memory guard.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]time.Time)}
}

// Admit implements Guard.
func (g *Memory) Admit(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.seen[key]; dup {
		return false, nil
	}
	g.seen[key] = time.Now().UTC()
	return true, nil
}

// Close implements Guard. It keeps the map; a closed memory guard still
// rejects keys it has seen.
func (g *Memory) Close() error { return nil }

// Len reports how many keys the guard has admitted.
func (g *Memory) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
