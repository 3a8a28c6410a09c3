package storage_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	key := "intake-" + uuid.NewString()

	inserted, err := testDB.InsertIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, inserted, "first sight owns the key")

	inserted, err = testDB.InsertIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, inserted, "second sight is a duplicate")
}

func TestInsertIdempotencyKeyConcurrent(t *testing.T) {
	ctx := context.Background()
	key := "intake-" + uuid.NewString()

	const workers = 16
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		start    = make(chan struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := testDB.InsertIdempotencyKey(ctx, key)
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load(),
		"exactly one concurrent insert may win the key")
}

func TestCountIdempotencyKeys(t *testing.T) {
	ctx := context.Background()

	before, err := testDB.CountIdempotencyKeys(ctx)
	require.NoError(t, err)

	_, err = testDB.InsertIdempotencyKey(ctx, "count-"+uuid.NewString())
	require.NoError(t, err)

	after, err := testDB.CountIdempotencyKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}
