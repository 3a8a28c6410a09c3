package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apura-ai/apura/internal/guard"
	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
)

func newEngine(t *testing.T, defs pipeline.Definitions) *pipeline.Engine {
	t.Helper()
	sup := pipeline.NewSupervisor(8, testLogger())
	return pipeline.NewEngine(defs, guard.NewMemory(), sup, testLogger())
}

func directMessageDefs(modules ...pipeline.Module) pipeline.Definitions {
	def := pipeline.NewDefinition(model.VariantDirectMessage,
		pipeline.Chain(model.EventMessageReceived, modules...)...)
	return pipeline.Definitions{model.VariantDirectMessage: def}
}

func TestSubmitUnknownVariant(t *testing.T) {
	e := newEngine(t, pipeline.Definitions{})
	_, err := e.Submit(context.Background(), model.Variant("bogus"), map[string]any{
		model.FieldIdempotencyKey: "k",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no definition")
}

func TestSubmitRequiresIdempotencyKey(t *testing.T) {
	e := newEngine(t, directMessageDefs(passthrough("reels_download")))
	_, err := e.Submit(context.Background(), model.VariantDirectMessage, map[string]any{
		model.FieldVideoURL: "https://example.com/reel",
	})
	require.ErrorIs(t, err, pipeline.ErrInvalidPayload)
}

func TestSubmitRunsChainOnce(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 4)
	final := &stubModule{
		name: "reels_download",
		execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
			runs.Add(1)
			done <- struct{}{}
			return payload, nil
		},
	}
	e := newEngine(t, directMessageDefs(final))

	payload := map[string]any{
		model.FieldIdempotencyKey: "m1",
		model.FieldVideoURL:       "https://example.com/reel/X",
		model.FieldVideoID:        "X",
		model.FieldUserID:         "u1",
	}
	accepted, err := e.Submit(context.Background(), model.VariantDirectMessage, payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run never executed")
	}

	// Resubmitting the same key with any payload is rejected and starts
	// no second run.
	accepted, err = e.Submit(context.Background(), model.VariantDirectMessage, map[string]any{
		model.FieldIdempotencyKey: "m1",
		model.FieldVideoURL:       "https://example.com/other",
	})
	require.NoError(t, err)
	assert.False(t, accepted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
	assert.Equal(t, int32(1), runs.Load())
}

func TestSubmitReturnsBeforeStagesRun(t *testing.T) {
	release := make(chan struct{})
	slow := &stubModule{
		name: "reels_download",
		execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
			<-release
			return payload, nil
		},
	}
	e := newEngine(t, directMessageDefs(slow))

	start := time.Now()
	accepted, err := e.Submit(context.Background(), model.VariantDirectMessage, map[string]any{
		model.FieldIdempotencyKey: "m1",
	})
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"Submit must not wait for stages")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

func TestChainPassesDerivedPayloadsInOrder(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	record := func(name string, payload map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		trace = append(trace, fmt.Sprintf("%s:%v", name, payload["data"].(map[string]any)["step"]))
	}

	step := func(name string, next int) *stubModule {
		return &stubModule{
			name: name,
			execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				record(name, payload)
				return map[string]any{
					"id":   payload["id"],
					"data": map[string]any{"step": next},
				}, nil
			},
		}
	}

	e := newEngine(t, directMessageDefs(
		step("s1", 1),
		step("s2", 2),
		step("s3", 3),
	))

	err := e.Run(context.Background(), model.VariantDirectMessage, map[string]any{
		model.FieldIdempotencyKey: "m1",
		"step":                    0,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1:0", "s2:1", "s3:2"}, trace,
		"each stage must see its predecessor's output exactly once, in order")
}

func TestFailedStageStopsChain(t *testing.T) {
	var s3Runs int
	defs := directMessageDefs(
		passthrough("s1"),
		&stubModule{
			name: "s2",
			execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				return nil, fmt.Errorf("detector unreachable")
			},
		},
		&stubModule{
			name: "s3",
			execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				s3Runs++
				return payload, nil
			},
		},
	)
	e := newEngine(t, defs)

	err := e.Run(context.Background(), model.VariantDirectMessage, map[string]any{
		model.FieldIdempotencyKey: "m1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s2.failed")
	assert.Equal(t, 0, s3Runs, "stages after a failure must never run")
}

func TestRunSucceedsSynchronously(t *testing.T) {
	var order []string
	defs := pipeline.Definitions{
		model.VariantDatasetCloud: pipeline.NewDefinition(model.VariantDatasetCloud,
			pipeline.Chain(model.EventDatasetLoadRequested,
				&stubModule{
					name: "dataset_load",
					execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
						order = append(order, "load")
						return payload, nil
					},
				},
				&stubModule{
					name: "dataset_persist",
					execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
						order = append(order, "persist")
						return payload, nil
					},
				},
			)...),
	}
	e := newEngine(t, defs)

	err := e.Run(context.Background(), model.VariantDatasetCloud, map[string]any{
		model.FieldIdempotencyKey: "sample-1",
		model.FieldDatasetID:      "sample-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"load", "persist"}, order)
}

func TestConcurrentDistinctKeysRunIndependently(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 16)
	m := &stubModule{
		name: "reels_download",
		execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
			mu.Lock()
			seen[payload["id"].(string)]++
			mu.Unlock()
			done <- struct{}{}
			return payload, nil
		},
	}
	e := newEngine(t, directMessageDefs(m))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, err := e.Submit(context.Background(), model.VariantDirectMessage, map[string]any{
				model.FieldIdempotencyKey: fmt.Sprintf("key-%d", i),
			})
			assert.NoError(t, err)
			assert.True(t, accepted)
		}()
	}
	wg.Wait()

	for range 8 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("not all runs executed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))

	assert.Len(t, seen, 8)
	for key, count := range seen {
		assert.Equal(t, 1, count, "request %s must run exactly once", key)
	}
}

func TestRunWithoutKeyGetsGeneratedRequestID(t *testing.T) {
	var requestID string
	m := &stubModule{
		name: "dataset_load",
		execute: func(ctx context.Context, payload map[string]any) (map[string]any, error) {
			requestID, _ = payload["id"].(string)
			return payload, nil
		},
	}
	defs := pipeline.Definitions{
		model.VariantDatasetCloud: pipeline.NewDefinition(model.VariantDatasetCloud,
			pipeline.Chain(model.EventDatasetLoadRequested, m)...),
	}
	e := newEngine(t, defs)

	require.NoError(t, e.Run(context.Background(), model.VariantDatasetCloud, map[string]any{}))
	assert.NotEmpty(t, requestID)
}
