package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/apura-ai/apura/internal/bus"
	"github.com/apura-ai/apura/internal/guard"
	"github.com/apura-ai/apura/internal/model"
)

// Engine is the intake facade: it admits submissions through the
// idempotency guard and executes accepted ones as pipeline runs, each on
// its own bus.
type Engine struct {
	logger *slog.Logger
	guard  guard.Guard
	sup    *Supervisor
	defs   Definitions
}

// NewEngine wires definitions, the guard, and the supervisor together.
func NewEngine(defs Definitions, g guard.Guard, sup *Supervisor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger.With("component", "engine"),
		guard:  g,
		sup:    sup,
		defs:   defs,
	}
}

// Submit admits one submission and, when it wins the idempotency check,
// schedules its run asynchronously. Returns false when the key is a
// duplicate; no run is started then. Submit returns as soon as the run
// is scheduled, never waiting on stages.
func (e *Engine) Submit(ctx context.Context, variant model.Variant, payload map[string]any) (bool, error) {
	def, ok := e.defs[variant]
	if !ok {
		return false, fmt.Errorf("pipeline: no definition for variant %q", variant)
	}
	key, _ := payload[model.FieldIdempotencyKey].(string)
	if key == "" {
		return false, fmt.Errorf("pipeline: submission without idempotency key: %w", ErrInvalidPayload)
	}

	admitted, err := e.guard.Admit(ctx, key)
	if err != nil {
		return false, fmt.Errorf("pipeline: admit %q: %w", key, err)
	}
	e.countAdmission(ctx, admitted)
	if !admitted {
		e.logger.InfoContext(ctx, "duplicate intake rejected",
			"variant", string(variant), "key", key)
		return false, nil
	}

	data := submissionData(payload)
	e.sup.Go(ctx, func(ctx context.Context) {
		e.runOnce(ctx, def, key, data)
	})
	return true, nil
}

// Run executes one chain synchronously on the caller's goroutine,
// bypassing the guard and the supervisor. Used for operator-driven
// invocations (dataset ingestion) where the caller wants the outcome.
func (e *Engine) Run(ctx context.Context, variant model.Variant, payload map[string]any) error {
	def, ok := e.defs[variant]
	if !ok {
		return fmt.Errorf("pipeline: no definition for variant %q", variant)
	}
	key, _ := payload[model.FieldIdempotencyKey].(string)
	if key == "" {
		key = uuid.NewString()
	}

	run := e.runOnce(ctx, def, key, submissionData(payload))
	if run.Status == model.RunStatusFailed {
		return fmt.Errorf("pipeline: run %s: %s", run.ID, run.Error)
	}
	return nil
}

// Close drains in-flight runs up to ctx's deadline.
func (e *Engine) Close(ctx context.Context) error {
	return e.sup.Close(ctx)
}

// Active reports currently executing runs.
func (e *Engine) Active() int64 { return e.sup.Active() }

// runOnce drives one complete pipeline run: fresh bus, stage bindings,
// trigger publish, terminal bookkeeping. It returns when the chain has
// terminated.
func (e *Engine) runOnce(ctx context.Context, def Definition, requestID string, data map[string]any) model.PipelineRun {
	run := model.PipelineRun{
		ID:        uuid.NewString(),
		Variant:   def.Variant,
		Key:       requestID,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	logger := e.logger.With(
		"run_id", run.ID,
		"variant", string(def.Variant),
		"request_id", requestID,
	)
	e.countRun(ctx, "started", def.Variant)

	// Terminal observer. The chain is synchronous on this goroutine, so
	// plain variables are safe.
	var failures []string
	b := bus.New(logger)
	def.Bind(b, logger, func(ctx context.Context, ev model.Event) {
		if strings.HasSuffix(ev.Type, ".failed") {
			failures = append(failures, ev.Type)
			logger.WarnContext(ctx, "stage failure observed",
				"event_type", ev.Type, "error", ev.Payload[model.FieldError])
			return
		}
		logger.InfoContext(ctx, "chain reached final stage", "event_type", ev.Type)
	})

	logger.InfoContext(ctx, "run started")
	b.Publish(ctx, def.Trigger, map[string]any{
		model.FieldID:      requestID,
		model.FieldVariant: string(def.Variant),
		model.FieldData:    data,
	})

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if len(failures) > 0 {
		run.Status = model.RunStatusFailed
		run.Error = strings.Join(failures, ", ")
		e.countRun(ctx, "failed", def.Variant)
	} else {
		run.Status = model.RunStatusCompleted
		e.countRun(ctx, "completed", def.Variant)
	}
	logger.InfoContext(ctx, "run finished",
		"status", string(run.Status),
		"duration_ms", finished.Sub(run.StartedAt).Milliseconds(),
		"error", run.Error,
	)
	return run
}

// submissionData copies the flat submission payload into the "data" map
// seeding the chain, dropping the idempotency key (it travels as the
// request id instead).
func submissionData(payload map[string]any) map[string]any {
	data := maps.Clone(payload)
	if data == nil {
		data = map[string]any{}
	}
	delete(data, model.FieldIdempotencyKey)
	return data
}

// countRun emits a run lifecycle counter (best-effort).
func (e *Engine) countRun(ctx context.Context, phase string, variant model.Variant) {
	if counter, err := pipelineMeter.Int64Counter("apura.runs." + phase); err == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("apura.variant", string(variant)),
		))
	}
}

// countAdmission emits the guard outcome counter (best-effort).
func (e *Engine) countAdmission(ctx context.Context, admitted bool) {
	name := "apura.guard.duplicates"
	if admitted {
		name = "apura.guard.admitted"
	}
	if counter, err := pipelineMeter.Int64Counter(name); err == nil {
		counter.Add(ctx, 1)
	}
}
