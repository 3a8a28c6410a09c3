package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a durable guard backing on an embedded Badger store. Admitted
// keys survive process restarts; check-and-set atomicity comes from
// Badger's transactional conflict detection.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadger opens (or creates) the key store under dir.
func NewBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("guard: create badger dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("guard: open badger: %w", err)
	}
	return &Badger{db: db, logger: logger.With("component", "guard")}, nil
}

// Admit implements Guard. A concurrent writer on the same key surfaces as
// badger.ErrConflict on commit; the losing transaction retries and then
// observes the key as taken.
func (g *Badger) Admit(ctx context.Context, key string) (bool, error) {
	for {
		admitted := false
		err := g.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				admitted = true
				stamp := time.Now().UTC().Format(time.RFC3339Nano)
				return txn.Set([]byte(key), []byte(stamp))
			}
			return err
		})
		switch {
		case err == nil:
			return admitted, nil
		case errors.Is(err, badger.ErrConflict):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			continue
		default:
			return false, fmt.Errorf("guard: badger admit: %w", err)
		}
	}
}

// Close implements Guard.
func (g *Badger) Close() error {
	if err := g.db.Close(); err != nil {
		return fmt.Errorf("guard: close badger: %w", err)
	}
	return nil
}

// RunGC runs Badger's value log garbage collection until ctx is done.
// Call from a background goroutine; a run with nothing to collect is the
// normal steady state.
func (g *Badger) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				g.logger.Warn("badger value log gc", "error", err)
			}
		}
	}
}
