package storage

import (
	"context"
	"fmt"
)

// InsertIdempotencyKey records an intake key if it has never been seen.
// It returns true when this call inserted the key, false when a previous
// intake already owns it. The insert-or-nothing form keeps the
// check-and-set atomic under concurrent submissions.
func (db *DB) InsertIdempotencyKey(ctx context.Context, key string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, first_seen_at)
		 VALUES ($1, now())
		 ON CONFLICT DO NOTHING`, key,
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountIdempotencyKeys reports how many intake keys have been recorded.
func (db *DB) CountIdempotencyKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM idempotency_keys`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count idempotency keys: %w", err)
	}
	return n, nil
}
