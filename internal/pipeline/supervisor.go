package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Task is the join handle for one scheduled run. Discarding it detaches;
// the run keeps going either way.
type Task struct {
	done chan struct{}
}

// Wait blocks until the run finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the run finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Supervisor executes pipeline runs on background goroutines so intake
// handlers return immediately. Concurrency is bounded; a panic escaping a
// run is recovered here and never reaches the intake path.
type Supervisor struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewSupervisor bounds concurrent runs at maxConcurrent (minimum 1).
func NewSupervisor(maxConcurrent int, logger *slog.Logger) *Supervisor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		logger: logger.With("component", "supervisor"),
		sem:    make(chan struct{}, maxConcurrent),
	}
	s.registerMetrics()
	return s
}

// Go schedules fn on a background goroutine and returns its handle
// without blocking, even when the concurrency limit is reached (the run
// queues on the semaphore inside its own goroutine). The run's context
// keeps the caller's values but not its cancellation: an intake request
// finishing must not abort the run it triggered.
func (s *Supervisor) Go(ctx context.Context, fn func(ctx context.Context)) *Task {
	runCtx := context.WithoutCancel(ctx)
	t := &Task{done: make(chan struct{})}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		s.active.Add(1)
		defer s.active.Add(-1)

		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(runCtx, "run escaped with panic",
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn(runCtx)
	}()
	return t
}

// Active reports how many runs are currently executing (queued runs not
// included).
func (s *Supervisor) Active() int64 { return s.active.Load() }

// Close waits for scheduled runs to finish, up to ctx's deadline. Runs
// are never cancelled mid-stage; a timeout leaves the stragglers
// detached and logged.
func (s *Supervisor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("close timed out waiting for runs", "active", s.Active())
		return ctx.Err()
	}
}

// registerMetrics registers the observable gauge for in-flight runs.
func (s *Supervisor) registerMetrics() {
	_, _ = pipelineMeter.Int64ObservableGauge("apura.supervisor.active",
		metric.WithDescription("Pipeline runs currently executing"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.Active())
			return nil
		}),
	)
}
