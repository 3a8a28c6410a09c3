// Package pipeline implements the orchestration engine: stage adapters,
// per-variant chain definitions, the async run supervisor, and the engine
// facade that admits submissions and drives runs over a private event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/apura-ai/apura/internal/bus"
	"github.com/apura-ai/apura/internal/model"
)

// ErrInvalidPayload marks a payload that is missing fields a module
// requires. Modules wrap it when extraction fails; the adapter treats it
// as a wiring error and publishes nothing, ending the chain.
var ErrInvalidPayload = errors.New("pipeline: invalid payload")

// Module is one black-box processing step. Execute blocks until the work
// is done and returns the complete payload for the next stage.
type Module interface {
	Name() string
	Execute(ctx context.Context, payload map[string]any) (map[string]any, error)
}

var pipelineMeter = otel.GetMeterProvider().Meter("apura/pipeline")

// Adapter wires one module into a run's bus. It is the failure boundary:
// module errors and panics become "<stage>.failed" events and never
// escape into the dispatch loop.
type Adapter struct {
	module Module
	bus    *bus.Bus
	logger *slog.Logger
}

// NewAdapter builds an adapter publishing on b.
func NewAdapter(m Module, b *bus.Bus, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		module: m,
		bus:    b,
		logger: logger.With("stage", m.Name()),
	}
}

// Handle consumes one event: it executes the wrapped module and publishes
// "<stage>.completed" with the module's output, or "<stage>.failed" with
// the error and the original payload. A payload the module cannot even
// parse is logged and publishes nothing.
func (a *Adapter) Handle(ctx context.Context, ev model.Event) {
	start := time.Now()
	out, err := a.execute(ctx, ev.Payload)
	a.recordDuration(ctx, time.Since(start), err)

	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			a.logger.ErrorContext(ctx, "stage received unusable payload, chain stops",
				"event_type", ev.Type, "error", err)
			return
		}
		a.logger.WarnContext(ctx, "stage failed",
			"event_type", ev.Type, "error", err)
		failure := maps.Clone(ev.Payload)
		if failure == nil {
			failure = map[string]any{}
		}
		failure[model.FieldError] = err.Error()
		a.bus.Publish(ctx, model.Failed(a.module.Name()), failure)
		return
	}

	a.logger.DebugContext(ctx, "stage completed",
		"event_type", ev.Type, "duration_ms", time.Since(start).Milliseconds())
	a.bus.Publish(ctx, model.Completed(a.module.Name()), out)
}

// execute invokes the module, converting a panic into an error so the
// chain's failure path stays uniform.
func (a *Adapter) execute(ctx context.Context, payload map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "stage panicked",
				"panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("stage %s panicked: %v", a.module.Name(), r)
		}
	}()
	return a.module.Execute(ctx, payload)
}

// recordDuration emits the stage duration metric (best-effort, instruments
// lazily created).
func (a *Adapter) recordDuration(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if hist, instErr := pipelineMeter.Float64Histogram("apura.stage.duration",
		otelmetric.WithUnit("ms")); instErr == nil {
		hist.Record(ctx, float64(d.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("apura.stage", a.module.Name()),
			attribute.String("apura.status", status),
		))
	}
}
